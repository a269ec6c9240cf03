package lifecycle

import "context"

type NotificationPriority string

const (
	NotifyLow    NotificationPriority = "low"
	NotifyNormal NotificationPriority = "normal"
	NotifyHigh   NotificationPriority = "high"
	NotifyUrgent NotificationPriority = "urgent"
)

const (
	NotificationAlertRaised       = "alert_raised"
	NotificationAlertAcknowledged = "alert_acknowledged"
	NotificationAlertResolved     = "alert_resolved"
	NotificationTaskAssigned      = "maintenance_assigned"
	NotificationTaskCompleted     = "maintenance_completed"
	NotificationTaskCancelled     = "maintenance_cancelled"
	NotificationPermitApproved    = "permit_approved"
	NotificationPermitRejected    = "permit_rejected"
	NotificationPermitExpired     = "permit_expired"
	NotificationTrainingAssigned  = "training_assigned"
	NotificationCertificateIssued = "certificate_issued"
	NotificationEquipmentFault    = "equipment_fault"
)

type NotificationRecord struct {
	UserID          string               `json:"user_id"`
	Type            string               `json:"type"`
	RelatedEntityID string               `json:"related_entity_id"`
	Message         string               `json:"message"`
	Priority        NotificationPriority `json:"priority"`
}

// Notifier creates notification records. Delivery happens elsewhere.
type Notifier interface {
	Create(ctx context.Context, n NotificationRecord) error
}

type NotifierFunc func(ctx context.Context, n NotificationRecord) error

func (f NotifierFunc) Create(ctx context.Context, n NotificationRecord) error { return f(ctx, n) }

func priorityForSeverity(s Severity) NotificationPriority {
	switch s {
	case SeverityCritical:
		return NotifyUrgent
	case SeverityHigh:
		return NotifyHigh
	case SeverityLow:
		return NotifyLow
	default:
		return NotifyNormal
	}
}
