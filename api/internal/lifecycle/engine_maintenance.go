package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type NewMaintenanceTask struct {
	Title       string     `json:"title"`
	Kind        TaskKind   `json:"kind"`
	EquipmentID string     `json:"equipment_id"`
	Priority    Priority   `json:"priority"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	CreatedBy   string     `json:"created_by"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// CreateMaintenanceTask checks the equipment reference once. Later reads tolerate it vanishing.
func (e *Engine) CreateMaintenanceTask(ctx context.Context, in NewMaintenanceTask) (TaskView, error) {
	var view TaskView
	err := e.create(ctx, EntityMaintenanceTask, func(ctx context.Context) error {
		var p problems
		p.required("title", in.Title)
		p.required("equipment_id", in.EquipmentID)
		p.required("created_by", in.CreatedBy)
		kind := TaskKind(strings.ToLower(strings.TrimSpace(string(in.Kind))))
		switch kind {
		case "":
			kind = TaskRepair
		case TaskInspection, TaskRepair, TaskPreventive:
		default:
			p.add("kind", "must be inspection, repair or preventive")
		}
		priority := Priority(strings.ToLower(strings.TrimSpace(string(in.Priority))))
		if priority == "" {
			priority = PriorityMedium
		}
		if !ValidPriority(priority) {
			p.add("priority", "must be low, medium, high or critical")
		}
		if err := p.err(EntityMaintenanceTask); err != nil {
			return err
		}

		eq, err := e.repos.Equipment.Get(ctx, strings.TrimSpace(in.EquipmentID))
		if err != nil {
			return err
		}
		if EquipmentTransitions.IsTerminal(eq.Status) {
			return Validation(EntityMaintenanceTask, FieldError{Field: "equipment_id", Message: "equipment is retired"})
		}

		now := e.clock.Now()
		t := MaintenanceTask{
			ID:          e.newID(),
			Title:       strings.TrimSpace(in.Title),
			Kind:        kind,
			Status:      TaskPending,
			EquipmentID: eq.ID,
			Priority:    priority,
			AssignedTo:  trimmedPtr(in.AssignedTo),
			CreatedBy:   strings.TrimSpace(in.CreatedBy),
			DueDate:     in.DueDate,
			Notes:       trimmedPtr(in.Notes),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := e.repos.Maintenance.Create(ctx, t)
		if err != nil {
			return err
		}
		view = TaskView{Task: created, Equipment: &eq, Lookup: EquipmentFound}
		return nil
	})
	if err != nil {
		return TaskView{}, err
	}

	if view.Task.AssignedTo != nil {
		e.notify(ctx, NotificationRecord{
			UserID:          *view.Task.AssignedTo,
			Type:            NotificationTaskAssigned,
			RelatedEntityID: view.Task.ID,
			Message:         fmt.Sprintf("Maintenance task %q on %s was assigned to you", view.Task.Title, view.Equipment.Name),
			Priority:        priorityForTask(view.Task.Priority),
		})
	}
	return view, nil
}

func (e *Engine) GetMaintenanceTask(ctx context.Context, id string) (TaskView, error) {
	t, err := e.repos.Maintenance.Get(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	return e.resolveEquipment(ctx, t)
}

// ListMaintenanceTasks never fails on a dangling equipment reference; such tasks are
// reported as orphaned.
func (e *Engine) ListMaintenanceTasks(ctx context.Context, f TaskFilter) ([]TaskView, error) {
	tasks, err := e.repos.Maintenance.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]*Equipment)
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		eq, seen := cache[t.EquipmentID]
		if !seen {
			v, err := e.resolveEquipment(ctx, t)
			if err != nil {
				return nil, err
			}
			cache[t.EquipmentID] = v.Equipment
			views = append(views, v)
			continue
		}
		v := TaskView{Task: t, Equipment: eq, Lookup: EquipmentFound}
		if eq == nil {
			v.Lookup = EquipmentOrphaned
		}
		views = append(views, v)
	}
	return views, nil
}

func (e *Engine) resolveEquipment(ctx context.Context, t MaintenanceTask) (TaskView, error) {
	eq, err := e.repos.Equipment.Get(ctx, t.EquipmentID)
	switch {
	case err == nil:
		return TaskView{Task: t, Equipment: &eq, Lookup: EquipmentFound}, nil
	case errors.Is(err, ErrNotFound):
		return TaskView{Task: t, Lookup: EquipmentOrphaned}, nil
	default:
		return TaskView{}, err
	}
}

func (e *Engine) StartMaintenanceTask(ctx context.Context, id string, in TaskCommandInput) (TaskView, error) {
	t, err := e.applyTask(ctx, id, TaskStart, in)
	if err != nil {
		return TaskView{}, err
	}
	return e.resolveEquipment(ctx, t)
}

// CompleteMaintenanceTask also stamps the equipment inspection date when the task is an
// inspection. That stamp is best effort: the task stays completed if it fails.
func (e *Engine) CompleteMaintenanceTask(ctx context.Context, id string, in TaskCommandInput) (TaskView, error) {
	t, err := e.applyTask(ctx, id, TaskComplete, in)
	if err != nil {
		return TaskView{}, err
	}
	if t.Kind == TaskInspection && t.CompletedAt != nil {
		if _, err := e.RecordInspection(ctx, t.EquipmentID, *t.CompletedAt); err != nil {
			e.logger.Warn(ctx, "inspection_stamp_failed", "completed inspection task did not update equipment",
				slog.String("task_id", t.ID),
				slog.String("equipment_id", t.EquipmentID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.notify(ctx, NotificationRecord{
		UserID:          t.CreatedBy,
		Type:            NotificationTaskCompleted,
		RelatedEntityID: t.ID,
		Message:         fmt.Sprintf("Maintenance task %q was completed", t.Title),
		Priority:        NotifyNormal,
	})
	return e.resolveEquipment(ctx, t)
}

func (e *Engine) CancelMaintenanceTask(ctx context.Context, id string, in TaskCommandInput) (TaskView, error) {
	t, err := e.applyTask(ctx, id, TaskCancel, in)
	if err != nil {
		return TaskView{}, err
	}
	if t.AssignedTo != nil {
		e.notify(ctx, NotificationRecord{
			UserID:          *t.AssignedTo,
			Type:            NotificationTaskCancelled,
			RelatedEntityID: t.ID,
			Message:         fmt.Sprintf("Maintenance task %q was cancelled: %s", t.Title, *t.CancelReason),
			Priority:        NotifyLow,
		})
	}
	return e.resolveEquipment(ctx, t)
}

func (e *Engine) applyTask(ctx context.Context, id string, cmd TaskCommand, in TaskCommandInput) (MaintenanceTask, error) {
	return mutate(ctx, e, EntityMaintenanceTask, id, string(cmd), e.repos.Maintenance.Get,
		func(cur MaintenanceTask, now time.Time) (MaintenanceTask, bool, error) {
			next, err := ApplyTaskCommand(cur, cmd, in, now)
			return next, false, err
		},
		e.repos.Maintenance.Save,
	)
}

func priorityForTask(p Priority) NotificationPriority {
	switch p {
	case PriorityCritical:
		return NotifyUrgent
	case PriorityHigh:
		return NotifyHigh
	case PriorityLow:
		return NotifyLow
	default:
		return NotifyNormal
	}
}
