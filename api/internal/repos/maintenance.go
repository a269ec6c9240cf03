package repos

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
)

const taskColumns = `id, title, kind, status, equipment_id, priority, assigned_to, created_by, due_date,
	started_at, completed_at, cancelled_at, cancel_reason, notes, created_at, updated_at, version`

type MaintenanceRepo struct {
	pool    *pgxpool.Pool
	history *HistoryRepo
}

func NewMaintenanceRepo(pool *pgxpool.Pool, history *HistoryRepo) *MaintenanceRepo {
	return &MaintenanceRepo{pool: pool, history: history}
}

func scanTask(row pgx.Row) (lifecycle.MaintenanceTask, error) {
	var t lifecycle.MaintenanceTask
	err := row.Scan(&t.ID, &t.Title, &t.Kind, &t.Status, &t.EquipmentID, &t.Priority, &t.AssignedTo, &t.CreatedBy, &t.DueDate,
		&t.StartedAt, &t.CompletedAt, &t.CancelledAt, &t.CancelReason, &t.Notes, &t.CreatedAt, &t.UpdatedAt, &t.Version)
	return t, err
}

func (r *MaintenanceRepo) Get(ctx context.Context, id string) (lifecycle.MaintenanceTask, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM maintenance_tasks WHERE id = $1`, id))
	if err != nil {
		return lifecycle.MaintenanceTask{}, notFound(lifecycle.EntityMaintenanceTask, id, err)
	}
	return t, nil
}

func (r *MaintenanceRepo) Create(ctx context.Context, t lifecycle.MaintenanceTask) (lifecycle.MaintenanceTask, error) {
	t.Version = 1
	err := insertVersioned(ctx, r.pool, r.history, `
		INSERT INTO maintenance_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, []any{t.ID, t.Title, t.Kind, t.Status, t.EquipmentID, t.Priority, t.AssignedTo, t.CreatedBy, t.DueDate,
		t.StartedAt, t.CompletedAt, t.CancelledAt, t.CancelReason, t.Notes, t.CreatedAt, t.UpdatedAt, t.Version},
		nil, change{aggregate: lifecycle.EntityMaintenanceTask, id: t.ID, to: string(t.Status), version: 1, at: t.CreatedAt, entity: t})
	if err != nil {
		return lifecycle.MaintenanceTask{}, err
	}
	return t, nil
}

func (r *MaintenanceRepo) Save(ctx context.Context, t lifecycle.MaintenanceTask) (lifecycle.MaintenanceTask, error) {
	next, err := saveVersioned(ctx, r.pool, r.history, update{
		table:   "maintenance_tasks",
		entity:  lifecycle.EntityMaintenanceTask,
		id:      t.ID,
		version: t.Version,
		stmt: `
			UPDATE maintenance_tasks
			SET status = $2, priority = $3, assigned_to = $4, due_date = $5, started_at = $6, completed_at = $7,
				cancelled_at = $8, cancel_reason = $9, notes = $10, updated_at = $11, version = version + 1
			WHERE id = $1
			RETURNING version`,
		args: []any{t.Status, t.Priority, t.AssignedTo, t.DueDate, t.StartedAt, t.CompletedAt,
			t.CancelledAt, t.CancelReason, t.Notes, t.UpdatedAt},
	}, func(version int64) change {
		saved := t
		saved.Version = version
		return change{aggregate: lifecycle.EntityMaintenanceTask, id: t.ID, to: string(t.Status), version: version, at: t.UpdatedAt, entity: saved}
	})
	if err != nil {
		return lifecycle.MaintenanceTask{}, err
	}
	t.Version = next
	return t, nil
}

func (r *MaintenanceRepo) Query(ctx context.Context, f lifecycle.TaskFilter) ([]lifecycle.MaintenanceTask, error) {
	var w where
	if f.Status != "" {
		w.eq("status", f.Status)
	}
	if f.EquipmentID != "" {
		w.eq("equipment_id", f.EquipmentID)
	}
	if f.AssignedTo != "" {
		w.eq("assigned_to", f.AssignedTo)
	}
	query := `SELECT ` + taskColumns + ` FROM maintenance_tasks` + w.sql() + ` ORDER BY created_at ASC, id ASC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.MaintenanceTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
