package dbx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"facility-compliance-system/shared/config"
)

func TestConstraintHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(unique) || IsForeignKeyViolation(unique) {
		t.Fatalf("expected wrapped unique violation")
	}
	fk := &pgconn.PgError{Code: "23503"}
	if !IsForeignKeyViolation(fk) || IsUniqueViolation(fk) {
		t.Fatalf("expected fk violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not a violation")
	}
}

func TestNilPool(t *testing.T) {
	if err := Ping(context.Background(), nil); err == nil {
		t.Fatalf("expected ping error")
	}
	if err := WithTx(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected tx error")
	}
	if _, err := NewPool(config.Config{}); err == nil {
		t.Fatalf("expected DATABASE_URL error")
	}
}
