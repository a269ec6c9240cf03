package models

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleEvent is one row of the append-only change history.
type LifecycleEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	FromStatus    *string   `json:"from_status,omitempty"`
	ToStatus      *string   `json:"to_status,omitempty"`
	Version       int64     `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       []byte    `json:"-"`
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

type AuditLog struct {
	AuditID      uuid.UUID
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
