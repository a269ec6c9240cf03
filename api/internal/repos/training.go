package repos

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
)

const trainingColumns = `id, user_id, training_id, title, frequency, required_by_date, completion_date,
	created_at, updated_at, version`

const certificateColumns = `id, requirement_id, certificate_number, issue_date, expiry_date, created_at`

// training rows have no stored status; history records open/completed
const trainingStatusExpr = `CASE WHEN completion_date IS NULL THEN 'open' ELSE 'completed' END`

type TrainingRepo struct {
	pool    *pgxpool.Pool
	history *HistoryRepo
}

func NewTrainingRepo(pool *pgxpool.Pool, history *HistoryRepo) *TrainingRepo {
	return &TrainingRepo{pool: pool, history: history}
}

func trainingState(r lifecycle.TrainingRequirement) string {
	if r.CompletionDate == nil {
		return "open"
	}
	return "completed"
}

func scanTraining(row pgx.Row) (lifecycle.TrainingRequirement, error) {
	var r lifecycle.TrainingRequirement
	err := row.Scan(&r.ID, &r.UserID, &r.TrainingID, &r.Title, &r.Frequency, &r.RequiredByDate, &r.CompletionDate,
		&r.CreatedAt, &r.UpdatedAt, &r.Version)
	return r, err
}

func (r *TrainingRepo) Get(ctx context.Context, id string) (lifecycle.TrainingRequirement, error) {
	req, err := scanTraining(r.pool.QueryRow(ctx, `SELECT `+trainingColumns+` FROM training_requirements WHERE id = $1`, id))
	if err != nil {
		return lifecycle.TrainingRequirement{}, notFound(lifecycle.EntityTraining, id, err)
	}
	certs, err := r.certificates(ctx, []string{id})
	if err != nil {
		return lifecycle.TrainingRequirement{}, err
	}
	req.Certificates = certs[id]
	return req, nil
}

func (r *TrainingRepo) Create(ctx context.Context, req lifecycle.TrainingRequirement) (lifecycle.TrainingRequirement, error) {
	req.Version = 1
	err := insertVersioned(ctx, r.pool, r.history, `
		INSERT INTO training_requirements (`+trainingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, []any{req.ID, req.UserID, req.TrainingID, req.Title, req.Frequency, req.RequiredByDate, req.CompletionDate,
		req.CreatedAt, req.UpdatedAt, req.Version},
		func(tx pgx.Tx) error { return insertCertificates(ctx, tx, req.Certificates) },
		change{aggregate: lifecycle.EntityTraining, id: req.ID, to: trainingState(req), version: 1, at: req.CreatedAt, entity: req})
	if err != nil {
		return lifecycle.TrainingRequirement{}, err
	}
	return req, nil
}

// Save updates the requirement and appends certificates it does not have yet. Stored
// certificates are left untouched.
func (r *TrainingRepo) Save(ctx context.Context, req lifecycle.TrainingRequirement) (lifecycle.TrainingRequirement, error) {
	_, err := saveVersioned(ctx, r.pool, r.history, update{
		table:      "training_requirements",
		entity:     lifecycle.EntityTraining,
		id:         req.ID,
		version:    req.Version,
		statusExpr: trainingStatusExpr,
		stmt: `
			UPDATE training_requirements
			SET title = $2, frequency = $3, required_by_date = $4, completion_date = $5, updated_at = $6,
				version = version + 1
			WHERE id = $1
			RETURNING version`,
		args:  []any{req.Title, req.Frequency, req.RequiredByDate, req.CompletionDate, req.UpdatedAt},
		after: func(tx pgx.Tx) error { return insertCertificates(ctx, tx, req.Certificates) },
	}, func(version int64) change {
		saved := req
		saved.Version = version
		return change{aggregate: lifecycle.EntityTraining, id: req.ID, to: trainingState(req), version: version, at: req.UpdatedAt, entity: saved}
	})
	if err != nil {
		return lifecycle.TrainingRequirement{}, err
	}
	return r.Get(ctx, req.ID)
}

func insertCertificates(ctx context.Context, tx pgx.Tx, certs []lifecycle.CertificateRecord) error {
	if len(certs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range certs {
		batch.Queue(`
			INSERT INTO certificates (`+certificateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, c.RequirementID, c.CertificateNumber, c.IssueDate, c.ExpiryDate, c.CreatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range certs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *TrainingRepo) certificates(ctx context.Context, ids []string) (map[string][]lifecycle.CertificateRecord, error) {
	out := make(map[string][]lifecycle.CertificateRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE requirement_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c lifecycle.CertificateRecord
		if err := rows.Scan(&c.ID, &c.RequirementID, &c.CertificateNumber, &c.IssueDate, &c.ExpiryDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		out[c.RequirementID] = append(out[c.RequirementID], c)
	}
	return out, rows.Err()
}

func (r *TrainingRepo) Query(ctx context.Context, f lifecycle.TrainingFilter) ([]lifecycle.TrainingRequirement, error) {
	var w where
	if f.UserID != "" {
		w.eq("user_id", f.UserID)
	}
	if f.TrainingID != "" {
		w.eq("training_id", f.TrainingID)
	}
	if f.DueBefore != nil {
		w.cmp("required_by_date", "<", *f.DueBefore)
	}
	query := `SELECT ` + trainingColumns + ` FROM training_requirements` + w.sql() + ` ORDER BY created_at ASC, id ASC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	var out []lifecycle.TrainingRequirement
	ids := make([]string, 0)
	for rows.Next() {
		req, err := scanTraining(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, req)
		ids = append(ids, req.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	certs, err := r.certificates(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Certificates = certs[out[i].ID]
	}
	return out, nil
}
