package repos

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
)

const permitColumns = `id, title, work_type, location, requested_by, valid_from, valid_until, status,
	approved_by, rejected_by, reviewed_at, comments, created_at, updated_at, version`

type PermitsRepo struct {
	pool    *pgxpool.Pool
	history *HistoryRepo
}

func NewPermitsRepo(pool *pgxpool.Pool, history *HistoryRepo) *PermitsRepo {
	return &PermitsRepo{pool: pool, history: history}
}

func scanPermit(row pgx.Row) (lifecycle.WorkPermit, error) {
	var p lifecycle.WorkPermit
	err := row.Scan(&p.ID, &p.Title, &p.WorkType, &p.Location, &p.RequestedBy, &p.ValidFrom, &p.ValidUntil, &p.Status,
		&p.ApprovedBy, &p.RejectedBy, &p.ReviewedAt, &p.Comments, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	return p, err
}

func (r *PermitsRepo) Get(ctx context.Context, id string) (lifecycle.WorkPermit, error) {
	p, err := scanPermit(r.pool.QueryRow(ctx, `SELECT `+permitColumns+` FROM work_permits WHERE id = $1`, id))
	if err != nil {
		return lifecycle.WorkPermit{}, notFound(lifecycle.EntityPermit, id, err)
	}
	return p, nil
}

func (r *PermitsRepo) Create(ctx context.Context, p lifecycle.WorkPermit) (lifecycle.WorkPermit, error) {
	p.Version = 1
	err := insertVersioned(ctx, r.pool, r.history, `
		INSERT INTO work_permits (`+permitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, []any{p.ID, p.Title, p.WorkType, p.Location, p.RequestedBy, p.ValidFrom, p.ValidUntil, p.Status,
		p.ApprovedBy, p.RejectedBy, p.ReviewedAt, p.Comments, p.CreatedAt, p.UpdatedAt, p.Version},
		nil, change{aggregate: lifecycle.EntityPermit, id: p.ID, to: string(p.Status), version: 1, at: p.CreatedAt, entity: p})
	if err != nil {
		return lifecycle.WorkPermit{}, err
	}
	return p, nil
}

func (r *PermitsRepo) Save(ctx context.Context, p lifecycle.WorkPermit) (lifecycle.WorkPermit, error) {
	next, err := saveVersioned(ctx, r.pool, r.history, update{
		table:   "work_permits",
		entity:  lifecycle.EntityPermit,
		id:      p.ID,
		version: p.Version,
		stmt: `
			UPDATE work_permits
			SET status = $2, approved_by = $3, rejected_by = $4, reviewed_at = $5, comments = $6, updated_at = $7,
				version = version + 1
			WHERE id = $1
			RETURNING version`,
		args: []any{p.Status, p.ApprovedBy, p.RejectedBy, p.ReviewedAt, p.Comments, p.UpdatedAt},
	}, func(version int64) change {
		saved := p
		saved.Version = version
		return change{aggregate: lifecycle.EntityPermit, id: p.ID, to: string(p.Status), version: version, at: p.UpdatedAt, entity: saved}
	})
	if err != nil {
		return lifecycle.WorkPermit{}, err
	}
	p.Version = next
	return p, nil
}

func (r *PermitsRepo) Query(ctx context.Context, f lifecycle.PermitFilter) ([]lifecycle.WorkPermit, error) {
	var w where
	if f.Status != "" {
		w.eq("status", f.Status)
	}
	if f.RequestedBy != "" {
		w.eq("requested_by", f.RequestedBy)
	}
	query := `SELECT ` + permitColumns + ` FROM work_permits` + w.sql() + ` ORDER BY created_at ASC, id ASC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lifecycle.WorkPermit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
