package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/dbx"
	"facility-compliance-system/shared/events"
)

// NotificationsRepo persists notification records and queues them for the delivery relay.
type NotificationsRepo struct {
	pool    *pgxpool.Pool
	history *HistoryRepo
	now     func() time.Time
}

func NewNotificationsRepo(pool *pgxpool.Pool, history *HistoryRepo) *NotificationsRepo {
	return &NotificationsRepo{pool: pool, history: history, now: func() time.Time { return time.Now().UTC() }}
}

func (r *NotificationsRepo) Create(ctx context.Context, n lifecycle.NotificationRecord) error {
	id := uuid.NewString()
	at := r.now()
	return dbx.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO notifications (id, user_id, type, related_entity_id, message, priority, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, n.UserID, n.Type, nullIfEmpty(n.RelatedEntityID), n.Message, n.Priority, at)
		if err != nil {
			return err
		}
		return r.history.append(ctx, tx, change{aggregate: events.AggregateNotification, id: id, to: n.Type, version: 1, at: at, entity: n})
	})
}

func (r *NotificationsRepo) ListForUser(ctx context.Context, userID string, limit int) ([]lifecycle.NotificationRecord, error) {
	var w where
	w.eq("user_id", userID)
	query := `SELECT user_id, type, COALESCE(related_entity_id, ''), message, priority
		FROM notifications` + w.sql() + ` ORDER BY created_at DESC, id DESC` + w.page(limit, 0)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.NotificationRecord
	for rows.Next() {
		var n lifecycle.NotificationRecord
		if err := rows.Scan(&n.UserID, &n.Type, &n.RelatedEntityID, &n.Message, &n.Priority); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
