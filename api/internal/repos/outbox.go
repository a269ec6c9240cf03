package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/models"
)

// Outbox rows move pending -> sending -> delivered, or back to pending with a retry time,
// or to dead once attempts run out.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusSending   = "sending"
	OutboxStatusDelivered = "delivered"
	OutboxStatusDead      = "dead"
)

var ErrOutboxEventMissing = errors.New("outbox event not found")

// Column order matches models.OutboxEvent field order for pgx.RowToStructByPos.
const outboxColumns = `event_id, aggregate_type, aggregate_id, topic, payload, status, attempts, next_retry_at,
	locked_at, locked_by, last_error, created_at, updated_at, published_at`

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

func collectOutbox(rows pgx.Rows) ([]models.OutboxEvent, error) {
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.OutboxEvent])
}

// Insert writes through db so the event commits or rolls back with the caller's change.
func (r *OutboxRepo) Insert(ctx context.Context, db DBTX, event models.OutboxEvent) (models.OutboxEvent, error) {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt

	rows, err := db.Query(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, topic, payload, status, attempts, created_at, updated_at)
		VALUES (@id, @aggregate_type, @aggregate_id, @topic, @payload, @status, 0, @created_at, @created_at)
		RETURNING `+outboxColumns,
		pgx.NamedArgs{
			"id":             event.EventID,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"topic":          event.Topic,
			"payload":        event.Payload,
			"status":         event.Status,
			"created_at":     event.CreatedAt,
		})
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.OutboxEvent])
}

// ClaimPending locks up to limit due rows for owner. SKIP LOCKED lets several relays
// scan concurrently without handing out the same row twice.
func (r *OutboxRepo) ClaimPending(ctx context.Context, owner string, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE outbox_events
		SET status = @sending, locked_at = now(), locked_by = @owner, updated_at = now()
		WHERE event_id IN (
			SELECT event_id FROM outbox_events
			WHERE status = @pending AND coalesce(next_retry_at, '-infinity') <= now()
			ORDER BY created_at
			LIMIT @limit
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		pgx.NamedArgs{"sending": OutboxStatusSending, "pending": OutboxStatusPending, "owner": owner, "limit": limit})
	if err != nil {
		return nil, err
	}
	return collectOutbox(rows)
}

func (r *OutboxRepo) GetByID(ctx context.Context, eventID uuid.UUID) (models.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE event_id = $1`, eventID)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	event, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.OutboxEvent])
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OutboxEvent{}, ErrOutboxEventMissing
	}
	return event, err
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, eventID uuid.UUID) error {
	return r.settle(ctx, eventID, pgx.NamedArgs{
		"status":    OutboxStatusDelivered,
		"published": true,
	})
}

// MarkFailed records a failed attempt. Dead rows keep no retry time.
func (r *OutboxRepo) MarkFailed(ctx context.Context, eventID uuid.UUID, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error {
	args := pgx.NamedArgs{
		"status":     OutboxStatusPending,
		"attempts":   attempts,
		"next_retry": nextRetryAt,
		"last_error": lastErr,
	}
	if dead {
		args["status"] = OutboxStatusDead
		args["next_retry"] = nil
	}
	return r.settle(ctx, eventID, args)
}

// settle releases the row lock and applies whichever of the optional fields args carries.
func (r *OutboxRepo) settle(ctx context.Context, eventID uuid.UUID, args pgx.NamedArgs) error {
	args["id"] = eventID
	for _, k := range []string{"attempts", "next_retry", "last_error", "published"} {
		if _, ok := args[k]; !ok {
			args[k] = nil
		}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = @status,
			attempts = coalesce(@attempts::int, attempts),
			next_retry_at = CASE WHEN @status = 'pending' THEN @next_retry::timestamptz ELSE NULL END,
			last_error = coalesce(@last_error::text, last_error),
			published_at = CASE WHEN coalesce(@published::bool, false) THEN now() ELSE published_at END,
			locked_at = NULL,
			updated_at = now()
		WHERE event_id = @id
	`, args)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxEventMissing
	}
	return nil
}

// ReleaseStale returns rows stuck in sending, e.g. after a worker crash, to pending.
func (r *OutboxRepo) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = @pending, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE status = @sending AND locked_at < now() - make_interval(secs => @age_secs)
	`, pgx.NamedArgs{"pending": OutboxStatusPending, "sending": OutboxStatusSending, "age_secs": olderThan.Seconds()})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RetryDelay grows quadratically from 5s and caps at 5m.
func RetryDelay(attempt int) time.Duration {
	const base, ceiling = 5 * time.Second, 5 * time.Minute
	if attempt <= 1 {
		return base
	}
	return min(time.Duration(attempt*attempt)*base, ceiling)
}
