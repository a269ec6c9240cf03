package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/models"
	"facility-compliance-system/shared/events"
)

// HistoryRepo appends lifecycle events and mirrors each one into the outbox.
type HistoryRepo struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepo
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool, outbox: NewOutboxRepo(pool)}
}

type change struct {
	aggregate string
	id        string
	from      string
	to        string
	version   int64
	at        time.Time
	entity    any
}

func (c change) eventType() string {
	switch {
	case c.from == "":
		return c.aggregate + ".created"
	case c.to == "":
		return c.aggregate + ".deleted"
	case c.from == c.to:
		return c.aggregate + ".updated"
	default:
		return c.aggregate + "." + c.to
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *HistoryRepo) append(ctx context.Context, tx pgx.Tx, c change) error {
	if c.at.IsZero() {
		c.at = time.Now().UTC()
	}
	payload, err := json.Marshal(c.entity)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.aggregate, err)
	}
	eventType := c.eventType()
	var eventID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO lifecycle_events (aggregate_type, aggregate_id, event_type, from_status, to_status, version, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING event_id
	`, c.aggregate, c.id, eventType, optional(c.from), optional(c.to), c.version, c.at, payload).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("append lifecycle event: %w", err)
	}

	topic := events.TopicFor(c.aggregate)
	if topic == "" {
		return nil
	}
	env := events.Envelope{
		EventID:       eventID,
		OccurredAt:    c.at.UTC(),
		AggregateType: c.aggregate,
		AggregateID:   c.id,
		EventType:     eventType,
		Payload:       payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = r.outbox.Insert(ctx, tx, models.OutboxEvent{
		EventID:       eventID,
		AggregateType: c.aggregate,
		AggregateID:   c.id,
		Topic:         topic,
		Payload:       body,
		CreatedAt:     c.at,
	})
	if err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

// List returns the history of one aggregate, oldest first.
func (r *HistoryRepo) List(ctx context.Context, aggregateType string, aggregateID string, limit int) ([]models.LifecycleEvent, error) {
	var w where
	w.eq("aggregate_type", aggregateType)
	w.eq("aggregate_id", aggregateID)
	query := `SELECT event_id, aggregate_type, aggregate_id, event_type, from_status, to_status, version, occurred_at, payload
		FROM lifecycle_events` + w.sql() + ` ORDER BY occurred_at ASC, version ASC` + w.page(limit, 0)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LifecycleEvent
	for rows.Next() {
		var ev models.LifecycleEvent
		if err := rows.Scan(&ev.EventID, &ev.AggregateType, &ev.AggregateID, &ev.EventType, &ev.FromStatus, &ev.ToStatus, &ev.Version, &ev.OccurredAt, &ev.Payload); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
