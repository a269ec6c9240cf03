package lifecycle

import (
	"slices"
	"strings"
	"time"

	"facility-compliance-system/shared/workflow"
)

type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

type AlertCommand string

const (
	AlertAcknowledge AlertCommand = "acknowledge"
	AlertResolve     AlertCommand = "resolve"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

func ValidSeverity(s Severity) bool {
	return slices.Contains(AllSeverities(), s)
}

type Alert struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	Severity           Severity    `json:"severity"`
	Source             string      `json:"source,omitempty"`
	EquipmentID        *string     `json:"equipment_id,omitempty"`
	ReportedBy         string      `json:"reported_by"`
	Status             AlertStatus `json:"status"`
	AcknowledgedBy     *string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt     *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgeNotes   *string     `json:"acknowledge_notes,omitempty"`
	Resolution         *string     `json:"resolution,omitempty"`
	ActionsTaken       []string    `json:"actions_taken,omitempty"`
	PreventiveMeasures *string     `json:"preventive_measures,omitempty"`
	ResolvedBy         *string     `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Version            int64       `json:"version"`
}

var AlertTransitions = workflow.NewTable(EntityAlert,
	[]AlertStatus{AlertOpen, AlertAcknowledged, AlertResolved},
	[]AlertStatus{AlertResolved},
	workflow.Transition[AlertStatus, AlertCommand]{From: AlertOpen, Command: AlertAcknowledge, To: AlertAcknowledged, EventType: "alert_acknowledged"},
	workflow.Transition[AlertStatus, AlertCommand]{From: AlertAcknowledged, Command: AlertResolve, To: AlertResolved, EventType: "alert_resolved"},
)

type ResolveAlertInput struct {
	ResolvedBy         string   `json:"resolved_by"`
	Resolution         string   `json:"resolution"`
	ActionsTaken       []string `json:"actions_taken"`
	PreventiveMeasures *string  `json:"preventive_measures,omitempty"`
}

func guardAlert(a Alert, cmd AlertCommand) error {
	if a.Status == AlertResolved {
		return AlreadyResolved(a.ID)
	}
	if !AlertTransitions.CanApply(a.Status, cmd) {
		return InvalidTransition(EntityAlert, a.ID, "cannot %s an alert that is %s", cmd, a.Status)
	}
	return nil
}

func AcknowledgeAlert(a Alert, by string, notes *string, now time.Time) (Alert, error) {
	if err := guardAlert(a, AlertAcknowledge); err != nil {
		return Alert{}, err
	}
	var p problems
	p.required("acknowledged_by", by)
	if err := p.err(EntityAlert); err != nil {
		return Alert{}, err
	}
	by = strings.TrimSpace(by)
	a.Status = AlertAcknowledged
	a.AcknowledgedBy = &by
	a.AcknowledgedAt = &now
	a.AcknowledgeNotes = trimmedPtr(notes)
	a.UpdatedAt = now
	return a, nil
}

// ResolveAlert requires a prior acknowledgement; resolving an open alert is rejected.
func ResolveAlert(a Alert, in ResolveAlertInput, now time.Time) (Alert, error) {
	if err := guardAlert(a, AlertResolve); err != nil {
		return Alert{}, err
	}
	var p problems
	p.required("resolved_by", in.ResolvedBy)
	p.required("resolution", in.Resolution)
	actions := make([]string, 0, len(in.ActionsTaken))
	for _, action := range in.ActionsTaken {
		if action = strings.TrimSpace(action); action != "" {
			actions = append(actions, action)
		}
	}
	if len(actions) == 0 {
		p.add("actions_taken", "must list at least one action")
	}
	if err := p.err(EntityAlert); err != nil {
		return Alert{}, err
	}
	by := strings.TrimSpace(in.ResolvedBy)
	resolution := strings.TrimSpace(in.Resolution)
	a.Status = AlertResolved
	a.ResolvedBy = &by
	a.ResolvedAt = &now
	a.Resolution = &resolution
	a.ActionsTaken = actions
	a.PreventiveMeasures = trimmedPtr(in.PreventiveMeasures)
	a.UpdatedAt = now
	return a, nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
