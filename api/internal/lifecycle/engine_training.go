package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type NewTrainingRequirement struct {
	UserID         string    `json:"user_id"`
	TrainingID     string    `json:"training_id"`
	Title          string    `json:"title"`
	Frequency      string    `json:"frequency,omitempty"`
	RequiredByDate time.Time `json:"required_by_date"`
}

func (e *Engine) CreateTrainingRequirement(ctx context.Context, in NewTrainingRequirement) (TrainingView, error) {
	var out TrainingRequirement
	err := e.create(ctx, EntityTraining, func(ctx context.Context) error {
		var p problems
		p.required("user_id", in.UserID)
		p.required("training_id", in.TrainingID)
		if in.RequiredByDate.IsZero() {
			p.add("required_by_date", "is required")
		}
		if err := p.err(EntityTraining); err != nil {
			return err
		}
		now := e.clock.Now()
		created, err := e.repos.Training.Create(ctx, TrainingRequirement{
			ID:             e.newID(),
			UserID:         strings.TrimSpace(in.UserID),
			TrainingID:     strings.TrimSpace(in.TrainingID),
			Title:          strings.TrimSpace(in.Title),
			Frequency:      strings.TrimSpace(in.Frequency),
			RequiredByDate: in.RequiredByDate,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return TrainingView{}, err
	}
	e.notify(ctx, NotificationRecord{
		UserID:          out.UserID,
		Type:            NotificationTrainingAssigned,
		RelatedEntityID: out.ID,
		Message:         fmt.Sprintf("Training %s is required by %s", trainingLabel(out), out.RequiredByDate.Format(time.DateOnly)),
		Priority:        NotifyNormal,
	})
	return e.trainingView(out), nil
}

func (e *Engine) trainingView(r TrainingRequirement) TrainingView {
	return NewTrainingView(r, e.clock.Now(), e.window)
}

func (e *Engine) GetTrainingRequirement(ctx context.Context, id string) (TrainingView, error) {
	r, err := e.repos.Training.Get(ctx, id)
	if err != nil {
		return TrainingView{}, err
	}
	return e.trainingView(r), nil
}

// ListTraining derives each requirement's status at read time. A status filter is applied
// after derivation since status is never stored.
func (e *Engine) ListTraining(ctx context.Context, f TrainingFilter, status TrainingStatus) ([]TrainingView, error) {
	query := f
	if status != "" {
		query.Limit, query.Offset = summaryScanLimit, 0
	}
	reqs, err := e.repos.Training.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	views := make([]TrainingView, 0, len(reqs))
	for _, r := range reqs {
		v := NewTrainingView(r, now, e.window)
		if status != "" && v.Status != status {
			continue
		}
		views = append(views, v)
	}
	if status != "" {
		return paginate(views, f.Offset, f.Limit), nil
	}
	return views, nil
}

func (e *Engine) CompleteTraining(ctx context.Context, id string, completedAt time.Time) (TrainingView, error) {
	saved, err := mutate(ctx, e, EntityTraining, id, "complete", e.repos.Training.Get,
		func(cur TrainingRequirement, now time.Time) (TrainingRequirement, bool, error) {
			at := completedAt
			if at.IsZero() {
				at = now
			}
			next, err := CompleteTraining(cur, at, now)
			return next, false, err
		},
		e.repos.Training.Save,
	)
	if err != nil {
		return TrainingView{}, err
	}
	return e.trainingView(saved), nil
}

func (e *Engine) IssueCertificate(ctx context.Context, requirementID string, in NewCertificate) (CertificateRecord, error) {
	var cert CertificateRecord
	saved, err := mutate(ctx, e, EntityTraining, requirementID, "issue_certificate", e.repos.Training.Get,
		func(cur TrainingRequirement, now time.Time) (TrainingRequirement, bool, error) {
			next, c, err := AppendCertificate(cur, e.newID(), in, now)
			cert = c
			return next, false, err
		},
		e.repos.Training.Save,
	)
	if err != nil {
		return CertificateRecord{}, err
	}
	e.notify(ctx, NotificationRecord{
		UserID:          saved.UserID,
		Type:            NotificationCertificateIssued,
		RelatedEntityID: cert.ID,
		Message:         fmt.Sprintf("Certificate %s issued for %s", cert.CertificateNumber, trainingLabel(saved)),
		Priority:        NotifyLow,
	})
	return cert, nil
}

// RenewTraining schedules the next occurrence of a completed recurring requirement. The
// completed requirement itself is left untouched.
func (e *Engine) RenewTraining(ctx context.Context, id string) (TrainingView, error) {
	cur, err := e.repos.Training.Get(ctx, id)
	if err != nil {
		return TrainingView{}, err
	}
	if cur.CompletionDate == nil {
		err := InvalidTransition(EntityTraining, cur.ID, "only completed training can be renewed")
		e.observe(ctx, EntityTraining, cur.ID, "renew", err)
		return TrainingView{}, err
	}
	due := e.nextDueDate(ctx, cur.Frequency, *cur.CompletionDate, EntityTraining, cur.ID)
	return e.CreateTrainingRequirement(ctx, NewTrainingRequirement{
		UserID:         cur.UserID,
		TrainingID:     cur.TrainingID,
		Title:          cur.Title,
		Frequency:      cur.Frequency,
		RequiredByDate: due,
	})
}

func trainingLabel(r TrainingRequirement) string {
	if r.Title != "" {
		return r.Title
	}
	return r.TrainingID
}
