package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type NewPermit struct {
	Title       string    `json:"title"`
	WorkType    string    `json:"work_type"`
	Location    string    `json:"location"`
	RequestedBy string    `json:"requested_by"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidUntil  time.Time `json:"valid_until"`
}

// PermitView is a permit as a reader sees it at the time of the read. EffectiveStatus may
// already say expired while the stored status is still pending.
type PermitView struct {
	Permit          WorkPermit   `json:"permit"`
	EffectiveStatus PermitStatus `json:"effective_status"`
}

func NewPermitView(p WorkPermit, now time.Time) PermitView {
	return PermitView{Permit: p, EffectiveStatus: EffectivePermitStatus(p, now)}
}

func (e *Engine) permitView(p WorkPermit) PermitView {
	return NewPermitView(p, e.clock.Now())
}

func (e *Engine) CreatePermit(ctx context.Context, in NewPermit) (PermitView, error) {
	var out WorkPermit
	err := e.create(ctx, EntityPermit, func(ctx context.Context) error {
		var p problems
		p.required("title", in.Title)
		p.required("work_type", in.WorkType)
		p.required("location", in.Location)
		p.required("requested_by", in.RequestedBy)
		if in.ValidFrom.IsZero() {
			p.add("valid_from", "is required")
		}
		if in.ValidUntil.IsZero() {
			p.add("valid_until", "is required")
		} else if !in.ValidUntil.After(in.ValidFrom) {
			p.add("valid_until", "must be after valid_from")
		}
		if err := p.err(EntityPermit); err != nil {
			return err
		}
		now := e.clock.Now()
		created, err := e.repos.Permits.Create(ctx, WorkPermit{
			ID:          e.newID(),
			Title:       strings.TrimSpace(in.Title),
			WorkType:    strings.TrimSpace(in.WorkType),
			Location:    strings.TrimSpace(in.Location),
			RequestedBy: strings.TrimSpace(in.RequestedBy),
			ValidFrom:   in.ValidFrom,
			ValidUntil:  in.ValidUntil,
			Status:      PermitPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return PermitView{}, err
	}
	return e.permitView(out), nil
}

// GetPermit never writes; a lapsed pending permit is only reported as expired.
func (e *Engine) GetPermit(ctx context.Context, id string) (PermitView, error) {
	p, err := e.repos.Permits.Get(ctx, id)
	if err != nil {
		return PermitView{}, err
	}
	return e.permitView(p), nil
}

// ListPermits filters on the effective status. Pending and expired are decided in memory
// because a stored pending permit may already be expired.
func (e *Engine) ListPermits(ctx context.Context, f PermitFilter) ([]PermitView, error) {
	want := f.Status
	derived := want == PermitPending || want == PermitExpiredStatus
	query := f
	if derived {
		query.Status, query.Limit, query.Offset = "", summaryScanLimit, 0
	}
	permits, err := e.repos.Permits.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	views := make([]PermitView, 0, len(permits))
	for _, p := range permits {
		v := NewPermitView(p, now)
		if want != "" && v.EffectiveStatus != want {
			continue
		}
		views = append(views, v)
	}
	if derived {
		return paginate(views, f.Offset, f.Limit), nil
	}
	return views, nil
}

func (e *Engine) ApprovePermit(ctx context.Context, id string, in ReviewPermitInput) (PermitView, error) {
	return e.reviewPermit(ctx, id, PermitApprove, in)
}

func (e *Engine) RejectPermit(ctx context.Context, id string, in ReviewPermitInput) (PermitView, error) {
	return e.reviewPermit(ctx, id, PermitReject, in)
}

func (e *Engine) reviewPermit(ctx context.Context, id string, cmd PermitCommand, in ReviewPermitInput) (PermitView, error) {
	saved, err := mutate(ctx, e, EntityPermit, id, string(cmd), e.repos.Permits.Get,
		func(cur WorkPermit, now time.Time) (WorkPermit, bool, error) {
			review, err := ReviewPermit(cur, cmd, in, now)
			return review.Permit, review.Expired, err
		},
		e.repos.Permits.Save,
	)
	if err != nil {
		if errors.Is(err, ErrPermitExpired) && saved.Status == PermitExpiredStatus {
			e.notify(ctx, NotificationRecord{
				UserID:          saved.RequestedBy,
				Type:            NotificationPermitExpired,
				RelatedEntityID: saved.ID,
				Message:         fmt.Sprintf("Work permit %q expired before it was reviewed", saved.Title),
				Priority:        NotifyNormal,
			})
		}
		return PermitView{}, err
	}

	n := NotificationRecord{UserID: saved.RequestedBy, RelatedEntityID: saved.ID, Priority: NotifyNormal}
	if saved.Status == PermitApproved {
		n.Type = NotificationPermitApproved
		n.Message = fmt.Sprintf("Work permit %q was approved by %s", saved.Title, *saved.ApprovedBy)
	} else {
		n.Type = NotificationPermitRejected
		n.Message = fmt.Sprintf("Work permit %q was rejected by %s", saved.Title, *saved.RejectedBy)
		n.Priority = NotifyHigh
	}
	e.notify(ctx, n)
	return e.permitView(saved), nil
}
