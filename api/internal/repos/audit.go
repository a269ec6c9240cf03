package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/models"
)

var auditColumns = []string{
	"occurred_at", "actor", "action", "resource_type", "resource_id", "request_id",
	"method", "path", "status_code", "duration_ms", "client_ip", "user_agent", "details",
}

// AuditRepo stores the HTTP audit trail written by the audit middleware.
type AuditRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool, now: time.Now}
}

func auditRow(entry models.AuditLog, now time.Time) []any {
	at := entry.OccurredAt
	if at.IsZero() {
		at = now
	}
	var details any
	if len(entry.Details) > 0 {
		details = entry.Details
	}
	return []any{
		at.UTC(),
		nullIfEmpty(entry.Actor),
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.Method),
		nullIfEmpty(entry.Path),
		entry.StatusCode,
		entry.DurationMS,
		nullIfEmpty(entry.ClientIP),
		nullIfEmpty(entry.UserAgent),
		details,
	}
}

// WriteAuditLog copies the entries in one round trip.
func (r *AuditRepo) WriteAuditLog(ctx context.Context, entries []models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	now := r.now()
	rows := make([][]any, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, auditRow(entry, now))
	}
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"audit_logs"}, auditColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy audit logs: %w", err)
	}
	if int(n) != len(entries) {
		return fmt.Errorf("copy audit logs: wrote %d of %d rows", n, len(entries))
	}
	return nil
}
