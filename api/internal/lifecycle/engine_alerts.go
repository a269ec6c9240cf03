package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type NewAlert struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Source      string   `json:"source,omitempty"`
	EquipmentID *string  `json:"equipment_id,omitempty"`
	ReportedBy  string   `json:"reported_by"`
}

// RaiseAlert creates an open alert. A referenced equipment id must exist at creation time.
func (e *Engine) RaiseAlert(ctx context.Context, in NewAlert) (Alert, error) {
	var out Alert
	err := e.create(ctx, EntityAlert, func(ctx context.Context) error {
		var p problems
		p.required("title", in.Title)
		p.required("reported_by", in.ReportedBy)
		severity := Severity(strings.ToLower(strings.TrimSpace(string(in.Severity))))
		if severity == "" {
			severity = SeverityMedium
		}
		if !ValidSeverity(severity) {
			p.add("severity", "must be low, medium, high or critical")
		}
		equipmentID := trimmedPtr(in.EquipmentID)
		if err := p.err(EntityAlert); err != nil {
			return err
		}
		if equipmentID != nil {
			if _, err := e.repos.Equipment.Get(ctx, *equipmentID); err != nil {
				return err
			}
		}

		now := e.clock.Now()
		a := Alert{
			ID:          e.newID(),
			Title:       strings.TrimSpace(in.Title),
			Description: strings.TrimSpace(in.Description),
			Severity:    severity,
			Source:      strings.TrimSpace(in.Source),
			EquipmentID: equipmentID,
			ReportedBy:  strings.TrimSpace(in.ReportedBy),
			Status:      AlertOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := e.repos.Alerts.Create(ctx, a)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return Alert{}, err
	}

	if out.Severity == SeverityHigh || out.Severity == SeverityCritical {
		e.notify(ctx, NotificationRecord{
			UserID:          e.escalation,
			Type:            NotificationAlertRaised,
			RelatedEntityID: out.ID,
			Message:         fmt.Sprintf("%s alert raised: %s", out.Severity, out.Title),
			Priority:        priorityForSeverity(out.Severity),
		})
	}
	return out, nil
}

func (e *Engine) GetAlert(ctx context.Context, id string) (Alert, error) {
	return e.repos.Alerts.Get(ctx, id)
}

func (e *Engine) ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	return e.repos.Alerts.Query(ctx, f)
}

func (e *Engine) AcknowledgeAlert(ctx context.Context, id string, by string, notes *string) (Alert, error) {
	saved, err := mutate(ctx, e, EntityAlert, id, string(AlertAcknowledge), e.repos.Alerts.Get,
		func(cur Alert, now time.Time) (Alert, bool, error) {
			next, err := AcknowledgeAlert(cur, by, notes, now)
			return next, false, err
		},
		e.repos.Alerts.Save,
	)
	if err != nil {
		return Alert{}, err
	}
	if !strings.EqualFold(saved.ReportedBy, *saved.AcknowledgedBy) {
		e.notify(ctx, NotificationRecord{
			UserID:          saved.ReportedBy,
			Type:            NotificationAlertAcknowledged,
			RelatedEntityID: saved.ID,
			Message:         fmt.Sprintf("Alert %q was acknowledged by %s", saved.Title, *saved.AcknowledgedBy),
			Priority:        priorityForSeverity(saved.Severity),
		})
	}
	return saved, nil
}

func (e *Engine) ResolveAlert(ctx context.Context, id string, in ResolveAlertInput) (Alert, error) {
	saved, err := mutate(ctx, e, EntityAlert, id, string(AlertResolve), e.repos.Alerts.Get,
		func(cur Alert, now time.Time) (Alert, bool, error) {
			next, err := ResolveAlert(cur, in, now)
			return next, false, err
		},
		e.repos.Alerts.Save,
	)
	if err != nil {
		return Alert{}, err
	}

	recipients := []string{saved.ReportedBy}
	if saved.AcknowledgedBy != nil {
		recipients = append(recipients, *saved.AcknowledgedBy)
	}
	seen := map[string]bool{strings.ToLower(*saved.ResolvedBy): true}
	for _, userID := range recipients {
		key := strings.ToLower(userID)
		if seen[key] {
			continue
		}
		seen[key] = true
		e.notify(ctx, NotificationRecord{
			UserID:          userID,
			Type:            NotificationAlertResolved,
			RelatedEntityID: saved.ID,
			Message:         fmt.Sprintf("Alert %q was resolved: %s", saved.Title, *saved.Resolution),
			Priority:        NotifyNormal,
		})
	}
	return saved, nil
}
