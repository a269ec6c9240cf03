package repos

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/dbx"
)

const equipmentColumns = `id, name, category, status, location, inspection_frequency, last_inspection_date,
	next_inspection_date, created_at, updated_at, version`

type EquipmentRepo struct {
	pool    *pgxpool.Pool
	history *HistoryRepo
}

func NewEquipmentRepo(pool *pgxpool.Pool, history *HistoryRepo) *EquipmentRepo {
	return &EquipmentRepo{pool: pool, history: history}
}

func scanEquipment(row pgx.Row) (lifecycle.Equipment, error) {
	var e lifecycle.Equipment
	err := row.Scan(&e.ID, &e.Name, &e.Category, &e.Status, &e.Location, &e.InspectionFrequency,
		&e.LastInspectionDate, &e.NextInspectionDate, &e.CreatedAt, &e.UpdatedAt, &e.Version)
	return e, err
}

func (r *EquipmentRepo) Get(ctx context.Context, id string) (lifecycle.Equipment, error) {
	e, err := scanEquipment(r.pool.QueryRow(ctx, `SELECT `+equipmentColumns+` FROM equipment WHERE id = $1`, id))
	if err != nil {
		return lifecycle.Equipment{}, notFound(lifecycle.EntityEquipment, id, err)
	}
	return e, nil
}

func (r *EquipmentRepo) Create(ctx context.Context, e lifecycle.Equipment) (lifecycle.Equipment, error) {
	e.Version = 1
	err := insertVersioned(ctx, r.pool, r.history, `
		INSERT INTO equipment (`+equipmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, []any{e.ID, e.Name, e.Category, e.Status, e.Location, e.InspectionFrequency, e.LastInspectionDate,
		e.NextInspectionDate, e.CreatedAt, e.UpdatedAt, e.Version},
		nil, change{aggregate: lifecycle.EntityEquipment, id: e.ID, to: string(e.Status), version: 1, at: e.CreatedAt, entity: e})
	if err != nil {
		return lifecycle.Equipment{}, err
	}
	return e, nil
}

func (r *EquipmentRepo) Save(ctx context.Context, e lifecycle.Equipment) (lifecycle.Equipment, error) {
	next, err := saveVersioned(ctx, r.pool, r.history, update{
		table:   "equipment",
		entity:  lifecycle.EntityEquipment,
		id:      e.ID,
		version: e.Version,
		stmt: `
			UPDATE equipment
			SET name = $2, category = $3, status = $4, location = $5, inspection_frequency = $6,
				last_inspection_date = $7, next_inspection_date = $8, updated_at = $9, version = version + 1
			WHERE id = $1
			RETURNING version`,
		args: []any{e.Name, e.Category, e.Status, e.Location, e.InspectionFrequency, e.LastInspectionDate, e.NextInspectionDate, e.UpdatedAt},
	}, func(version int64) change {
		saved := e
		saved.Version = version
		return change{aggregate: lifecycle.EntityEquipment, id: e.ID, to: string(e.Status), version: version, at: e.UpdatedAt, entity: saved}
	})
	if err != nil {
		return lifecycle.Equipment{}, err
	}
	e.Version = next
	return e, nil
}

// Delete removes the row only; maintenance tasks keep their equipment_id and become orphans.
func (r *EquipmentRepo) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		e, err := scanEquipment(tx.QueryRow(ctx, `DELETE FROM equipment WHERE id = $1 RETURNING `+equipmentColumns, id))
		if err != nil {
			return notFound(lifecycle.EntityEquipment, id, err)
		}
		return r.history.append(ctx, tx, change{aggregate: lifecycle.EntityEquipment, id: id, from: string(e.Status), version: e.Version, entity: e})
	})
}

func (r *EquipmentRepo) Query(ctx context.Context, f lifecycle.EquipmentFilter) ([]lifecycle.Equipment, error) {
	var w where
	if f.Status != "" {
		w.eq("status", f.Status)
	}
	if f.Location != "" {
		w.eq("location", f.Location)
	}
	query := `SELECT ` + equipmentColumns + ` FROM equipment` + w.sql() + ` ORDER BY created_at ASC, id ASC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
