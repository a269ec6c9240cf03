package repos

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/lifecycle"
)

//go:embed schema.sql
var schema string

// EnsureSchema applies the idempotent DDL.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// Postgres bundles the pgx-backed repositories around one pool.
type Postgres struct {
	History       *HistoryRepo
	Equipment     *EquipmentRepo
	Alerts        *AlertsRepo
	Maintenance   *MaintenanceRepo
	Permits       *PermitsRepo
	Training      *TrainingRepo
	Notifications *NotificationsRepo
	Outbox        *OutboxRepo
	Audit         *AuditRepo
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	history := NewHistoryRepo(pool)
	return &Postgres{
		History:       history,
		Equipment:     NewEquipmentRepo(pool, history),
		Alerts:        NewAlertsRepo(pool, history),
		Maintenance:   NewMaintenanceRepo(pool, history),
		Permits:       NewPermitsRepo(pool, history),
		Training:      NewTrainingRepo(pool, history),
		Notifications: NewNotificationsRepo(pool, history),
		Outbox:        history.outbox,
		Audit:         NewAuditRepo(pool),
	}
}

func (p *Postgres) Repositories() lifecycle.Repositories {
	return lifecycle.Repositories{
		Equipment:   p.Equipment,
		Alerts:      p.Alerts,
		Maintenance: p.Maintenance,
		Permits:     p.Permits,
		Training:    p.Training,
	}
}
