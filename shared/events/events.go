package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every message published to Kafka.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicEquipmentEvents   = "equipment.events"
	TopicAlertEvents       = "alert.events"
	TopicMaintenanceEvents = "maintenance.events"
	TopicPermitEvents      = "permit.events"
	TopicTrainingEvents    = "training.events"
	TopicNotifications     = "notifications"

	// TopicEquipmentStatus carries status reports from facility monitoring, not from this system.
	TopicEquipmentStatus = "equipment.status"
)

const (
	AggregateEquipment    = "equipment"
	AggregateAlert        = "alert"
	AggregateMaintenance  = "maintenance_task"
	AggregatePermit       = "work_permit"
	AggregateTraining     = "training_requirement"
	AggregateNotification = "notification"
)

// TopicFor maps an aggregate type to its lifecycle topic.
func TopicFor(aggregateType string) string {
	switch aggregateType {
	case AggregateEquipment:
		return TopicEquipmentEvents
	case AggregateAlert:
		return TopicAlertEvents
	case AggregateMaintenance:
		return TopicMaintenanceEvents
	case AggregatePermit:
		return TopicPermitEvents
	case AggregateTraining:
		return TopicTrainingEvents
	case AggregateNotification:
		return TopicNotifications
	default:
		return ""
	}
}

func NewEnvelope(aggregateType string, aggregateID string, eventType string, payload any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Envelope{
		EventID:       uuid.New(),
		OccurredAt:    at.UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// EquipmentStatusReport is the payload on TopicEquipmentStatus.
type EquipmentStatusReport struct {
	EquipmentID string    `json:"equipment_id"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"`
	ReportedBy  string    `json:"reported_by,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}
