package lifecycle

import (
	"strings"
	"time"

	"facility-compliance-system/shared/workflow"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

type TaskCommand string

const (
	TaskStart    TaskCommand = "start"
	TaskComplete TaskCommand = "complete"
	TaskCancel   TaskCommand = "cancel"
)

type TaskKind string

const (
	TaskInspection TaskKind = "inspection"
	TaskRepair     TaskKind = "repair"
	TaskPreventive TaskKind = "preventive"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type MaintenanceTask struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Kind         TaskKind   `json:"kind"`
	Status       TaskStatus `json:"status"`
	EquipmentID  string     `json:"equipment_id"`
	Priority     Priority   `json:"priority"`
	AssignedTo   *string    `json:"assigned_to,omitempty"`
	CreatedBy    string     `json:"created_by"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Version      int64      `json:"version"`
}

var TaskTransitions = workflow.NewTable(EntityMaintenanceTask,
	[]TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskCancelled},
	[]TaskStatus{TaskCompleted, TaskCancelled},
	workflow.Transition[TaskStatus, TaskCommand]{From: TaskPending, Command: TaskStart, To: TaskInProgress, EventType: "task_started"},
	workflow.Transition[TaskStatus, TaskCommand]{From: TaskPending, Command: TaskCancel, To: TaskCancelled, EventType: "task_cancelled"},
	workflow.Transition[TaskStatus, TaskCommand]{From: TaskInProgress, Command: TaskComplete, To: TaskCompleted, EventType: "task_completed"},
	workflow.Transition[TaskStatus, TaskCommand]{From: TaskInProgress, Command: TaskCancel, To: TaskCancelled, EventType: "task_cancelled"},
)

type TaskCommandInput struct {
	Actor  string  `json:"actor"`
	Notes  *string `json:"notes,omitempty"`
	Reason *string `json:"reason,omitempty"`
}

func ApplyTaskCommand(t MaintenanceTask, cmd TaskCommand, in TaskCommandInput, now time.Time) (MaintenanceTask, error) {
	row, ok := TaskTransitions.Next(t.Status, cmd)
	if !ok {
		if TaskTransitions.IsTerminal(t.Status) {
			return MaintenanceTask{}, InvalidTransition(EntityMaintenanceTask, t.ID, "task is already %s", t.Status)
		}
		return MaintenanceTask{}, InvalidTransition(EntityMaintenanceTask, t.ID, "cannot %s a task that is %s", cmd, t.Status)
	}
	if cmd == TaskCancel && (in.Reason == nil || strings.TrimSpace(*in.Reason) == "") {
		return MaintenanceTask{}, Validation(EntityMaintenanceTask, FieldError{Field: "reason", Message: "is required"})
	}
	t.Status = row.To
	t.UpdatedAt = now
	switch cmd {
	case TaskStart:
		t.StartedAt = &now
		if t.AssignedTo == nil && strings.TrimSpace(in.Actor) != "" {
			actor := strings.TrimSpace(in.Actor)
			t.AssignedTo = &actor
		}
	case TaskComplete:
		t.CompletedAt = &now
		if notes := trimmedPtr(in.Notes); notes != nil {
			t.Notes = notes
		}
	case TaskCancel:
		t.CancelledAt = &now
		t.CancelReason = trimmedPtr(in.Reason)
	}
	return t, nil
}

type EquipmentLookup string

const (
	EquipmentFound    EquipmentLookup = "found"
	EquipmentOrphaned EquipmentLookup = "orphaned"
)

// TaskView is a task as reported to readers. A task whose equipment has been deleted is
// still returned, with Lookup set to orphaned.
type TaskView struct {
	Task      MaintenanceTask `json:"task"`
	Equipment *Equipment      `json:"equipment,omitempty"`
	Lookup    EquipmentLookup `json:"equipment_lookup"`
}
