package repos

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
)

const alertColumns = `id, title, description, severity, source, equipment_id, reported_by, status,
	acknowledged_by, acknowledged_at, acknowledge_notes, resolution, actions_taken, preventive_measures,
	resolved_by, resolved_at, created_at, updated_at, version`

type AlertsRepo struct {
	pool    *pgxpool.Pool
	history *HistoryRepo
}

func NewAlertsRepo(pool *pgxpool.Pool, history *HistoryRepo) *AlertsRepo {
	return &AlertsRepo{pool: pool, history: history}
}

func scanAlert(row pgx.Row) (lifecycle.Alert, error) {
	var a lifecycle.Alert
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Severity, &a.Source, &a.EquipmentID, &a.ReportedBy, &a.Status,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.AcknowledgeNotes, &a.Resolution, &a.ActionsTaken, &a.PreventiveMeasures,
		&a.ResolvedBy, &a.ResolvedAt, &a.CreatedAt, &a.UpdatedAt, &a.Version)
	return a, err
}

func (r *AlertsRepo) Get(ctx context.Context, id string) (lifecycle.Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		return lifecycle.Alert{}, notFound(lifecycle.EntityAlert, id, err)
	}
	return a, nil
}

func (r *AlertsRepo) Create(ctx context.Context, a lifecycle.Alert) (lifecycle.Alert, error) {
	a.Version = 1
	err := insertVersioned(ctx, r.pool, r.history, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, []any{a.ID, a.Title, a.Description, a.Severity, a.Source, a.EquipmentID, a.ReportedBy, a.Status,
		a.AcknowledgedBy, a.AcknowledgedAt, a.AcknowledgeNotes, a.Resolution, a.ActionsTaken, a.PreventiveMeasures,
		a.ResolvedBy, a.ResolvedAt, a.CreatedAt, a.UpdatedAt, a.Version},
		nil, change{aggregate: lifecycle.EntityAlert, id: a.ID, to: string(a.Status), version: 1, at: a.CreatedAt, entity: a})
	if err != nil {
		return lifecycle.Alert{}, err
	}
	return a, nil
}

func (r *AlertsRepo) Save(ctx context.Context, a lifecycle.Alert) (lifecycle.Alert, error) {
	next, err := saveVersioned(ctx, r.pool, r.history, update{
		table:   "alerts",
		entity:  lifecycle.EntityAlert,
		id:      a.ID,
		version: a.Version,
		stmt: `
			UPDATE alerts
			SET status = $2, acknowledged_by = $3, acknowledged_at = $4, acknowledge_notes = $5, resolution = $6,
				actions_taken = $7, preventive_measures = $8, resolved_by = $9, resolved_at = $10, updated_at = $11,
				version = version + 1
			WHERE id = $1
			RETURNING version`,
		args: []any{a.Status, a.AcknowledgedBy, a.AcknowledgedAt, a.AcknowledgeNotes, a.Resolution,
			a.ActionsTaken, a.PreventiveMeasures, a.ResolvedBy, a.ResolvedAt, a.UpdatedAt},
	}, func(version int64) change {
		saved := a
		saved.Version = version
		return change{aggregate: lifecycle.EntityAlert, id: a.ID, to: string(a.Status), version: version, at: a.UpdatedAt, entity: saved}
	})
	if err != nil {
		return lifecycle.Alert{}, err
	}
	a.Version = next
	return a, nil
}

func (r *AlertsRepo) Query(ctx context.Context, f lifecycle.AlertFilter) ([]lifecycle.Alert, error) {
	var w where
	if f.Status != "" {
		w.eq("status", f.Status)
	}
	if f.Severity != "" {
		w.eq("severity", f.Severity)
	}
	if f.EquipmentID != "" {
		w.eq("equipment_id", f.EquipmentID)
	}
	query := `SELECT ` + alertColumns + ` FROM alerts` + w.sql() + ` ORDER BY created_at ASC, id ASC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
