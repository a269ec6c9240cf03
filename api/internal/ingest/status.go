// Package ingest applies equipment status reports from the monitoring stream to the
// lifecycle engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/events"
	"facility-compliance-system/shared/logx"
)

// AlertSource marks alerts raised from status reports; open ones suppress duplicates.
const AlertSource = "equipment_status"

const defaultReporter = "equipment-monitor"

// ErrMalformed is returned for reports that can never be applied.
var ErrMalformed = errors.New("malformed status report")

type Engine interface {
	GetEquipment(ctx context.Context, id string) (lifecycle.Equipment, error)
	TransitionEquipment(ctx context.Context, id string, target lifecycle.EquipmentStatus, actor string) (lifecycle.EquipmentTransition, error)
	ListAlerts(ctx context.Context, f lifecycle.AlertFilter) ([]lifecycle.Alert, error)
	RaiseAlert(ctx context.Context, in lifecycle.NewAlert) (lifecycle.Alert, error)
}

type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeFaulted    Outcome = "faulted"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeAlerted    Outcome = "alerted"
	OutcomeUnknownRef Outcome = "unknown_equipment"
)

type StatusHandler struct {
	Engine Engine
	Logger logx.Logger
}

func Decode(payload []byte) (events.EquipmentStatusReport, error) {
	var report events.EquipmentStatusReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return report, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	report.EquipmentID = strings.TrimSpace(report.EquipmentID)
	report.Status = strings.ToLower(strings.TrimSpace(report.Status))
	if report.EquipmentID == "" || report.Status == "" {
		return report, fmt.Errorf("%w: equipment_id and status are required", ErrMalformed)
	}
	return report, nil
}

// Handle applies one raw message. Only fault reports change state: the equipment moves
// to fault unless it is already there or retired, and a high severity alert is raised
// unless an unresolved one from this source exists. Errors other than ErrMalformed are
// transient and the message should be retried.
func (h StatusHandler) Handle(ctx context.Context, payload []byte) (Outcome, error) {
	report, err := Decode(payload)
	if err != nil {
		return OutcomeIgnored, err
	}
	if lifecycle.EquipmentStatus(report.Status) != lifecycle.EquipmentFault {
		return OutcomeIgnored, nil
	}
	actor := strings.TrimSpace(report.ReportedBy)
	if actor == "" {
		actor = defaultReporter
	}

	eq, err := h.Engine.GetEquipment(ctx, report.EquipmentID)
	if lifecycle.KindOf(err) == lifecycle.KindNotFound {
		h.Logger.Warn(ctx, "status_unknown_equipment", "status report for unknown equipment",
			slog.String("equipment_id", report.EquipmentID),
		)
		return OutcomeUnknownRef, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	if eq.Status == lifecycle.EquipmentRetired {
		return OutcomeIgnored, nil
	}

	outcome := OutcomeDuplicate
	if eq.Status != lifecycle.EquipmentFault {
		_, err := h.Engine.TransitionEquipment(ctx, eq.ID, lifecycle.EquipmentFault, actor)
		// a concurrent writer may have faulted it first
		if err != nil && lifecycle.KindOf(err) != lifecycle.KindInvalidTransition {
			return OutcomeIgnored, err
		}
		outcome = OutcomeFaulted
	}

	open, err := h.hasOpenAlert(ctx, eq.ID)
	if err != nil {
		return outcome, err
	}
	if open {
		return outcome, nil
	}
	description := strings.TrimSpace(report.Detail)
	if description == "" {
		description = "fault reported by " + actor
	}
	id := eq.ID
	if _, err := h.Engine.RaiseAlert(ctx, lifecycle.NewAlert{
		Title:       "Equipment fault: " + eq.Name,
		Description: description,
		Severity:    lifecycle.SeverityHigh,
		Source:      AlertSource,
		EquipmentID: &id,
		ReportedBy:  actor,
	}); err != nil {
		return outcome, err
	}
	return OutcomeAlerted, nil
}

const alertPageSize = 200

// hasOpenAlert looks for an unresolved status alert on the equipment, paging through
// every open and acknowledged alert it has.
func (h StatusHandler) hasOpenAlert(ctx context.Context, equipmentID string) (bool, error) {
	for _, status := range []lifecycle.AlertStatus{lifecycle.AlertOpen, lifecycle.AlertAcknowledged} {
		for offset := 0; ; offset += alertPageSize {
			alerts, err := h.Engine.ListAlerts(ctx, lifecycle.AlertFilter{
				EquipmentID: equipmentID,
				Status:      status,
				Limit:       alertPageSize,
				Offset:      offset,
			})
			if err != nil {
				return false, err
			}
			for _, a := range alerts {
				if a.Source == AlertSource {
					return true, nil
				}
			}
			if len(alerts) < alertPageSize {
				break
			}
		}
	}
	return false, nil
}
