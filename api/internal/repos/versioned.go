package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/dbx"
)

// update describes one conditional write of a versioned row.
type update struct {
	table  string
	entity string
	id     string
	// version the caller loaded; the write fails unless it is still current
	version int64
	// SQL expression yielding the row's lifecycle status
	statusExpr string
	// UPDATE statement; $1 is the id and it must RETURNING version
	stmt string
	args []any
	// extra statements run after the row update, inside the same transaction
	after func(tx pgx.Tx) error
}

// saveVersioned locks the row, checks the version, applies the update and appends the
// lifecycle event, all in one transaction. It returns the new version.
func saveVersioned(ctx context.Context, pool *pgxpool.Pool, history *HistoryRepo, u update, snapshot func(version int64) change) (int64, error) {
	if u.statusExpr == "" {
		u.statusExpr = "status"
	}
	var next int64
	err := dbx.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var from string
		var current int64
		err := tx.QueryRow(ctx, "SELECT "+u.statusExpr+", version FROM "+u.table+" WHERE id = $1 FOR UPDATE", u.id).Scan(&from, &current)
		if err != nil {
			return notFound(u.entity, u.id, err)
		}
		if current != u.version {
			return lifecycle.ConcurrentModification(u.entity, u.id, fmt.Errorf("stored version %d, caller has %d", current, u.version))
		}
		args := append([]any{u.id}, u.args...)
		if err := tx.QueryRow(ctx, u.stmt, args...).Scan(&next); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return lifecycle.ConcurrentModification(u.entity, u.id, err)
			}
			return err
		}
		if u.after != nil {
			if err := u.after(tx); err != nil {
				return err
			}
		}
		c := snapshot(next)
		c.from = from
		return history.append(ctx, tx, c)
	})
	return next, err
}

// insertVersioned runs an INSERT and records the created event in one transaction.
func insertVersioned(ctx context.Context, pool *pgxpool.Pool, history *HistoryRepo, stmt string, args []any, after func(tx pgx.Tx) error, c change) error {
	return dbx.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			if dbx.IsUniqueViolation(err) {
				return lifecycle.Validation(c.aggregate, lifecycle.FieldError{Field: "id", Message: "already exists"})
			}
			return err
		}
		if after != nil {
			if err := after(tx); err != nil {
				return err
			}
		}
		c.from = ""
		return history.append(ctx, tx, c)
	})
}
