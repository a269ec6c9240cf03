package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type NewEquipment struct {
	Name                string          `json:"name"`
	Category            string          `json:"category"`
	Location            string          `json:"location"`
	Status              EquipmentStatus `json:"status,omitempty"`
	InspectionFrequency string          `json:"inspection_frequency,omitempty"`
	LastInspectionDate  *time.Time      `json:"last_inspection_date,omitempty"`
}

func (e *Engine) CreateEquipment(ctx context.Context, in NewEquipment) (Equipment, error) {
	var out Equipment
	err := e.create(ctx, EntityEquipment, func(ctx context.Context) error {
		var p problems
		p.required("name", in.Name)
		p.required("location", in.Location)
		status := EquipmentOperational
		if in.Status != "" {
			status = EquipmentStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
			if !EquipmentTransitions.Valid(status) || EquipmentTransitions.IsTerminal(status) {
				p.add("status", "must be operational, maintenance or fault")
			}
		}
		now := e.clock.Now()
		if in.LastInspectionDate != nil && in.LastInspectionDate.After(now) {
			p.add("last_inspection_date", "must not be in the future")
		}
		if err := p.err(EntityEquipment); err != nil {
			return err
		}

		eq := Equipment{
			ID:                  e.newID(),
			Name:                strings.TrimSpace(in.Name),
			Category:            strings.TrimSpace(in.Category),
			Status:              status,
			Location:            strings.TrimSpace(in.Location),
			InspectionFrequency: strings.TrimSpace(in.InspectionFrequency),
			LastInspectionDate:  in.LastInspectionDate,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if eq.LastInspectionDate != nil {
			next := e.nextDueDate(ctx, eq.InspectionFrequency, *eq.LastInspectionDate, EntityEquipment, eq.ID)
			eq.NextInspectionDate = &next
		}
		created, err := e.repos.Equipment.Create(ctx, eq)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	return out, err
}

func (e *Engine) GetEquipment(ctx context.Context, id string) (Equipment, error) {
	return e.repos.Equipment.Get(ctx, id)
}

func (e *Engine) ListEquipment(ctx context.Context, f EquipmentFilter) ([]Equipment, error) {
	return e.repos.Equipment.Query(ctx, f)
}

// TransitionEquipment moves equipment to target. The result tells the caller whether the
// equipment just entered fault so it can decide on raising an alert.
func (e *Engine) TransitionEquipment(ctx context.Context, id string, target EquipmentStatus, actor string) (EquipmentTransition, error) {
	cmd, ok := EquipmentCommandFor(target)
	if !ok {
		return EquipmentTransition{}, Validation(EntityEquipment, FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)})
	}
	var result EquipmentTransition
	saved, err := mutate(ctx, e, EntityEquipment, id, string(cmd), e.repos.Equipment.Get,
		func(cur Equipment, now time.Time) (Equipment, bool, error) {
			tr, err := ApplyEquipmentCommand(cur, cmd, now)
			if err != nil {
				return Equipment{}, false, err
			}
			result = tr
			return tr.Equipment, true, nil
		},
		e.repos.Equipment.Save,
	)
	if err != nil {
		return EquipmentTransition{}, err
	}
	result.Equipment = saved

	if result.FaultEntered {
		e.logger.Info(ctx, "equipment_fault", "equipment entered fault",
			slog.String("equipment_id", saved.ID),
			slog.String("from", string(result.From)),
			slog.String("actor", actor),
		)
		e.notify(ctx, NotificationRecord{
			UserID:          e.escalation,
			Type:            NotificationEquipmentFault,
			RelatedEntityID: saved.ID,
			Message:         fmt.Sprintf("Equipment %s at %s reported a fault", saved.Name, saved.Location),
			Priority:        NotifyHigh,
		})
	}
	return result, nil
}

func (e *Engine) RecordInspection(ctx context.Context, id string, at time.Time) (Equipment, error) {
	return mutate(ctx, e, EntityEquipment, id, "record_inspection", e.repos.Equipment.Get,
		func(cur Equipment, now time.Time) (Equipment, bool, error) {
			next, known, err := RecordEquipmentInspection(cur, at, now)
			if err != nil {
				return Equipment{}, false, err
			}
			if !known && next.InspectionFrequency != "" {
				e.logger.Warn(ctx, "frequency_fallback", "unrecognised frequency, scheduling one year out",
					slog.String("frequency", next.InspectionFrequency),
					slog.String("entity", EntityEquipment),
					slog.String("entity_id", next.ID),
				)
			}
			return next, true, nil
		},
		e.repos.Equipment.Save,
	)
}

// DeleteEquipment removes the equipment only. Tasks that reference it are left in place and
// report the reference as orphaned.
func (e *Engine) DeleteEquipment(ctx context.Context, id string) error {
	unlock, err := e.lock(ctx, EntityEquipment, id)
	if err != nil {
		return err
	}
	defer unlock()
	err = e.repos.Equipment.Delete(ctx, id)
	e.observe(ctx, EntityEquipment, id, "delete", err)
	if err == nil {
		e.invalidateSummary(ctx)
	}
	return err
}
