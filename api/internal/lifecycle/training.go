package lifecycle

import (
	"strings"
	"time"
)

// TrainingRequirement stores facts only. Its status is derived on read.
type TrainingRequirement struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	TrainingID     string              `json:"training_id"`
	Title          string              `json:"title"`
	Frequency      string              `json:"frequency,omitempty"`
	RequiredByDate time.Time           `json:"required_by_date"`
	CompletionDate *time.Time          `json:"completion_date,omitempty"`
	Certificates   []CertificateRecord `json:"certificates,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Version        int64               `json:"version"`
}

func (r TrainingRequirement) Status(now time.Time, window time.Duration) TrainingStatus {
	return DeriveTrainingStatusWithin(r.RequiredByDate, r.CompletionDate, now, window)
}

type CertificateRecord struct {
	ID                string     `json:"id"`
	RequirementID     string     `json:"requirement_id"`
	CertificateNumber string     `json:"certificate_number"`
	IssueDate         time.Time  `json:"issue_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type TrainingView struct {
	Requirement  TrainingRequirement `json:"requirement"`
	Status       TrainingStatus      `json:"status"`
	DaysUntilDue int                 `json:"days_until_due"`
}

func NewTrainingView(r TrainingRequirement, now time.Time, window time.Duration) TrainingView {
	return TrainingView{
		Requirement:  r,
		Status:       r.Status(now, window),
		DaysUntilDue: DaysBetween(now, r.RequiredByDate),
	}
}

// CompleteTraining records the completion date. Completion is permanent.
func CompleteTraining(r TrainingRequirement, at time.Time, now time.Time) (TrainingRequirement, error) {
	if r.CompletionDate != nil {
		return TrainingRequirement{}, InvalidTransition(EntityTraining, r.ID, "training already completed")
	}
	if at.After(now) {
		return TrainingRequirement{}, Validation(EntityTraining, FieldError{Field: "completed_at", Message: "must not be in the future"})
	}
	r.CompletionDate = &at
	r.UpdatedAt = now
	return r, nil
}

type NewCertificate struct {
	CertificateNumber string     `json:"certificate_number"`
	IssueDate         time.Time  `json:"issue_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
}

// AppendCertificate attaches an immutable certificate to a completed requirement.
func AppendCertificate(r TrainingRequirement, id string, in NewCertificate, now time.Time) (TrainingRequirement, CertificateRecord, error) {
	if r.CompletionDate == nil {
		return TrainingRequirement{}, CertificateRecord{}, InvalidTransition(EntityTraining, r.ID, "certificates require a completed training")
	}
	var p problems
	p.required("certificate_number", in.CertificateNumber)
	if in.IssueDate.IsZero() {
		p.add("issue_date", "is required")
	}
	if in.ExpiryDate != nil && !in.ExpiryDate.After(in.IssueDate) {
		p.add("expiry_date", "must be after issue_date")
	}
	number := strings.TrimSpace(in.CertificateNumber)
	for _, existing := range r.Certificates {
		if number != "" && existing.CertificateNumber == number {
			p.add("certificate_number", "already issued for this requirement")
		}
	}
	if err := p.err(EntityCertificate); err != nil {
		return TrainingRequirement{}, CertificateRecord{}, err
	}
	cert := CertificateRecord{
		ID:                id,
		RequirementID:     r.ID,
		CertificateNumber: number,
		IssueDate:         in.IssueDate,
		ExpiryDate:        in.ExpiryDate,
		CreatedAt:         now,
	}
	certs := make([]CertificateRecord, 0, len(r.Certificates)+1)
	certs = append(certs, r.Certificates...)
	r.Certificates = append(certs, cert)
	r.UpdatedAt = now
	return r, cert, nil
}
