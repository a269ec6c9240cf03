package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"facility-compliance-system/api/internal/handlers"
	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/memstore"
	"facility-compliance-system/api/internal/middleware"
	"facility-compliance-system/api/internal/repos"
	"facility-compliance-system/api/internal/snapshots"
	"facility-compliance-system/shared/cachex"
	"facility-compliance-system/shared/clients/notify"
	"facility-compliance-system/shared/config"
	"facility-compliance-system/shared/dbx"
	"facility-compliance-system/shared/influxx"
	"facility-compliance-system/shared/lockx"
	"facility-compliance-system/shared/logx"
)

type dependencies struct {
	repos         lifecycle.Repositories
	notifier      lifecycle.Notifier
	locker        lifecycle.Locker
	cache         lifecycle.JSONCache
	notifications handlers.NotificationReader
	history       handlers.HistoryReader
	snapshots     handlers.SnapshotReader
	audit         middleware.AuditWriter

	pool     *pgxpool.Pool
	redis    *cachex.Client
	influx   *influxx.Client
	problems []config.Problem
	closed   bool
}

func (d *dependencies) problem(field string, message string) {
	d.problems = append(d.problems, config.Problem{Field: field, Message: message})
}

func (d *dependencies) close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.pool != nil {
		d.pool.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	d.influx.Close()
}

// wire builds the store, lock, cache, notifier and snapshot reader selected by cfg. Failures
// become readiness problems instead of aborting startup.
func wire(ctx context.Context, cfg config.Config, logger logx.Logger) *dependencies {
	d := &dependencies{}
	var notifiers fanout

	switch cfg.StoreDriver {
	case "memory":
		store := memstore.New()
		notes := &memstore.Notifications{}
		d.repos = store.Repositories()
		d.notifications = notes
		notifiers = append(notifiers, notes)
	default:
		if cfg.DatabaseURL == "" {
			d.problem("DATABASE_URL", "DATABASE_URL is required")
			break
		}
		pool, err := dbx.NewPool(cfg)
		if err != nil {
			d.problem("DATABASE_URL", "failed to connect to database")
			logger.Error(ctx, "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
			break
		}
		if err := repos.EnsureSchema(ctx, pool); err != nil {
			logger.Warn(ctx, "schema_apply_failed", "schema not applied", slog.String("error", err.Error()))
		}
		pg := repos.NewPostgres(pool)
		d.pool = pool
		d.repos = pg.Repositories()
		d.notifications = pg.Notifications
		d.history = pg.History
		d.audit = pg.Audit
		notifiers = append(notifiers, pg.Notifications)
	}

	if cfg.RedisAddr != "" {
		client, err := cachex.New(cfg)
		if err != nil {
			d.problem("REDIS_ADDR", "failed to initialize redis")
		} else {
			d.redis = client
			d.cache = client
			if cfg.EntityLockEnabled {
				d.locker = lockx.NewLocker(client.Client(), "lock:", cfg.EntityLockTTL())
			}
		}
	}
	if d.locker == nil && cfg.EntityLockEnabled {
		// single-process fallback
		d.locker = &memstore.Locker{}
	}

	if cfg.NotifyServiceURL != "" {
		client, err := notify.New(cfg)
		if err != nil {
			d.problem("NOTIFY_SERVICE_URL", err.Error())
		} else {
			notifiers = append(notifiers, lifecycle.NotifierFunc(func(ctx context.Context, n lifecycle.NotificationRecord) error {
				return client.Send(ctx, notify.Notification{
					UserID:          n.UserID,
					Type:            n.Type,
					RelatedEntityID: n.RelatedEntityID,
					Message:         n.Message,
					Priority:        string(n.Priority),
				})
			}))
		}
	}
	if len(notifiers) > 0 {
		d.notifier = notifiers
	}

	if cfg.InfluxURL != "" {
		client, err := influxx.New(cfg)
		if err != nil {
			d.problem("INFLUX_URL", err.Error())
		} else {
			d.influx = client
			d.snapshots = snapshots.Reader{Client: client}
		}
	}
	return d
}

// fanout hands every record to each notifier and joins their errors.
type fanout []lifecycle.Notifier

func (f fanout) Create(ctx context.Context, n lifecycle.NotificationRecord) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Create(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
