package repos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/shared/dbx"
)

type DBTX = dbx.DBTX

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(column string, value any) {
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

func (w *where) cmp(column string, op string, value any) {
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf("%s %s $%d", column, op, len(w.args)))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(limit int, offset int) string {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func notFound(entity string, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return lifecycle.NotFound(entity, id)
	}
	return err
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
