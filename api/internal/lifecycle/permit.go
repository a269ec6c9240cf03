package lifecycle

import (
	"strings"
	"time"

	"facility-compliance-system/shared/workflow"
)

type PermitStatus string

const (
	PermitPending       PermitStatus = "pending"
	PermitApproved      PermitStatus = "approved"
	PermitRejected      PermitStatus = "rejected"
	PermitExpiredStatus PermitStatus = "expired"
)

type PermitCommand string

const (
	PermitApprove PermitCommand = "approve"
	PermitReject  PermitCommand = "reject"
	PermitExpire  PermitCommand = "expire"
)

type WorkPermit struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	WorkType    string       `json:"work_type"`
	Location    string       `json:"location"`
	RequestedBy string       `json:"requested_by"`
	ValidFrom   time.Time    `json:"valid_from"`
	ValidUntil  time.Time    `json:"valid_until"`
	Status      PermitStatus `json:"status"`
	ApprovedBy  *string      `json:"approved_by,omitempty"`
	RejectedBy  *string      `json:"rejected_by,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
	Comments    *string      `json:"comments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Version     int64        `json:"version"`
}

// Expire is never issued by callers; it is applied when a command finds the validity
// window already closed.
var PermitTransitions = workflow.NewTable(EntityPermit,
	[]PermitStatus{PermitPending, PermitApproved, PermitRejected, PermitExpiredStatus},
	[]PermitStatus{PermitApproved, PermitRejected, PermitExpiredStatus},
	workflow.Transition[PermitStatus, PermitCommand]{From: PermitPending, Command: PermitApprove, To: PermitApproved, EventType: "permit_approved"},
	workflow.Transition[PermitStatus, PermitCommand]{From: PermitPending, Command: PermitReject, To: PermitRejected, EventType: "permit_rejected"},
	workflow.Transition[PermitStatus, PermitCommand]{From: PermitPending, Command: PermitExpire, To: PermitExpiredStatus, EventType: "permit_expired"},
)

func PermitIsExpired(p WorkPermit, now time.Time) bool {
	return p.Status == PermitPending && now.After(p.ValidUntil)
}

// EffectivePermitStatus is the status a reader should see at now, including an expiry that
// has not been persisted yet.
func EffectivePermitStatus(p WorkPermit, now time.Time) PermitStatus {
	if PermitIsExpired(p, now) {
		return PermitExpiredStatus
	}
	return p.Status
}

type ReviewPermitInput struct {
	Reviewer string  `json:"reviewer"`
	Comments *string `json:"comments,omitempty"`
}

// PermitReview is the result of approve or reject. When Expired is set the returned permit
// carries the expired status that must be stored, and Err is PermitExpired.
type PermitReview struct {
	Permit  WorkPermit
	Expired bool
}

func ReviewPermit(p WorkPermit, cmd PermitCommand, in ReviewPermitInput, now time.Time) (PermitReview, error) {
	if cmd != PermitApprove && cmd != PermitReject {
		return PermitReview{}, InvalidTransition(EntityPermit, p.ID, "unknown review command %q", cmd)
	}
	if p.Status == PermitExpiredStatus {
		return PermitReview{}, PermitExpired(p.ID)
	}
	if PermitIsExpired(p, now) {
		row, _ := PermitTransitions.Next(p.Status, PermitExpire)
		p.Status = row.To
		p.UpdatedAt = now
		return PermitReview{Permit: p, Expired: true}, PermitExpired(p.ID)
	}
	row, ok := PermitTransitions.Next(p.Status, cmd)
	if !ok {
		return PermitReview{}, InvalidTransition(EntityPermit, p.ID, "permit was already %s", p.Status)
	}
	reviewer := strings.TrimSpace(in.Reviewer)
	var prob problems
	prob.required("reviewer", reviewer)
	if reviewer != "" && strings.EqualFold(reviewer, strings.TrimSpace(p.RequestedBy)) {
		prob.add("reviewer", "must differ from the requester")
	}
	if err := prob.err(EntityPermit); err != nil {
		return PermitReview{}, err
	}

	p.Status = row.To
	p.ReviewedAt = &now
	p.Comments = trimmedPtr(in.Comments)
	p.UpdatedAt = now
	if cmd == PermitApprove {
		p.ApprovedBy = &reviewer
		p.RejectedBy = nil
	} else {
		p.RejectedBy = &reviewer
		p.ApprovedBy = nil
	}
	return PermitReview{Permit: p}, nil
}
