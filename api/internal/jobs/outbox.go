package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"facility-compliance-system/api/internal/models"
	"facility-compliance-system/api/internal/repos"
	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/metricsx"
)

const (
	TypeOutboxScan     = "outbox.scan"
	TypeOutboxDispatch = "outbox.dispatch"
	TypeOutboxRelease  = "outbox.release"
)

type OutboxStore interface {
	ClaimPending(ctx context.Context, owner string, limit int) ([]models.OutboxEvent, error)
	GetByID(ctx context.Context, eventID uuid.UUID) (models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, eventID uuid.UUID) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type dispatchPayload struct {
	EventID string `json:"event_id"`
}

// Relay moves committed outbox rows onto Kafka. Scan claims a batch and fans it out as
// dispatch tasks; dispatch publishes one row and records the outcome.
type Relay struct {
	Store       OutboxStore
	Publisher   Publisher
	Enqueuer    Enqueuer
	Queue       string
	Owner       string
	BatchSize   int
	MaxAttempts int
	// StaleAfter is how long a claimed row may sit in sending before it is released.
	StaleAfter time.Duration
	Logger     logx.Logger
	Now        func() time.Time
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Relay) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOutboxScan, r.HandleScan)
	mux.HandleFunc(TypeOutboxDispatch, r.HandleDispatch)
	mux.HandleFunc(TypeOutboxRelease, r.HandleRelease)
}

func NewDispatchTask(eventID uuid.UUID, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(dispatchPayload{EventID: eventID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOutboxDispatch, payload, asynq.Queue(queue), asynq.MaxRetry(0)), nil
}

func (r *Relay) HandleScan(ctx context.Context, _ *asynq.Task) error {
	events, err := r.Store.ClaimPending(ctx, r.Owner, r.BatchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		task, err := NewDispatchTask(event.EventID, r.Queue)
		if err == nil {
			_, err = r.Enqueuer.EnqueueContext(ctx, task)
		}
		if err != nil {
			r.Logger.Error(ctx, "enqueue_failed", "failed to enqueue outbox dispatch",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("event_id", event.EventID.String()),
				slog.String("error", err.Error()),
			)
			r.fail(ctx, event, err)
		}
	}
	return nil
}

func (r *Relay) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("asynq").Start(ctx, TypeOutboxDispatch)
	span.SetAttributes(attribute.String("queue", r.Queue))
	defer span.End()

	var payload dispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode dispatch payload: %v: %w", err, asynq.SkipRetry)
	}
	eventID, err := uuid.Parse(strings.TrimSpace(payload.EventID))
	if err != nil {
		return fmt.Errorf("parse event id: %v: %w", err, asynq.SkipRetry)
	}
	event, err := r.Store.GetByID(ctx, eventID)
	if errors.Is(err, repos.ErrOutboxEventMissing) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if event.Status == repos.OutboxStatusDelivered || event.Status == repos.OutboxStatusDead {
		return nil
	}
	span.SetAttributes(
		attribute.String("messaging.destination", event.Topic),
		attribute.String("aggregate_type", event.AggregateType),
	)

	headers := map[string]string{
		"event_id":       event.EventID.String(),
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"published_at":   r.now().Format(time.RFC3339Nano),
	}
	if err := r.Publisher.Publish(ctx, event.Topic, []byte(event.AggregateID), event.Payload, headers); err != nil {
		if r.fail(ctx, event, err) {
			return nil
		}
		return err
	}
	return r.Store.MarkDelivered(ctx, event.EventID)
}

// fail reschedules the row and reports whether it has been moved to dead.
func (r *Relay) fail(ctx context.Context, event models.OutboxEvent, cause error) bool {
	attempts := event.Attempts + 1
	next := r.now().Add(repos.RetryDelay(attempts))
	dead := r.MaxAttempts > 0 && attempts >= r.MaxAttempts
	if err := r.Store.MarkFailed(ctx, event.EventID, attempts, &next, cause.Error(), dead); err != nil {
		r.Logger.Error(ctx, "outbox_mark_failed", "failed to record outbox failure",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)
	}
	if dead {
		metricsx.IncOutboxDead()
		r.Logger.Warn(ctx, "outbox_dead", "outbox event moved to dead-letter",
			slog.String("event_id", event.EventID.String()),
			slog.String("topic", event.Topic),
			slog.Int("attempts", attempts),
		)
	}
	return dead
}

// HandleRelease returns rows stuck in sending, e.g. after a worker crash, to pending.
func (r *Relay) HandleRelease(ctx context.Context, _ *asynq.Task) error {
	after := r.StaleAfter
	if after <= 0 {
		after = 5 * time.Minute
	}
	n, err := r.Store.ReleaseStale(ctx, after)
	if err != nil {
		return err
	}
	if n > 0 {
		r.Logger.Info(ctx, "outbox_released", "released stale outbox events", slog.Int64("count", n))
	}
	return nil
}
