package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"facility-compliance-system/api/internal/jobs"
	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/repos"
	"facility-compliance-system/shared/cachex"
	"facility-compliance-system/shared/config"
	"facility-compliance-system/shared/dbx"
	"facility-compliance-system/shared/influxx"
	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/metricsx"
	"facility-compliance-system/shared/mqx"
	"facility-compliance-system/shared/observability"
)

func fatal(logger logx.Logger, event string, msg string, err error) {
	logger.Error(context.Background(), event, msg,
		slog.String("error_code", "FAILED_PRECONDITION"),
		slog.String("error", err.Error()),
	)
	os.Exit(1)
}

func main() {
	cfg, problems := config.Load("worker", 8083)
	logger := logx.New(cfg.ServiceName, cfg.Env, cfg.Version, cfg.LogLevel)
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if len(problems) > 0 {
		logger.Error(ctx, "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Version:     cfg.Version,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}
	metricsx.Register()

	pool, err := dbx.NewPool(cfg)
	if err != nil {
		fatal(logger, "db_init_failed", "db init failed", err)
	}
	defer pool.Close()
	pg := repos.NewPostgres(pool)

	producer, err := mqx.NewProducer(cfg)
	if err != nil {
		fatal(logger, "kafka_init_failed", "kafka producer init failed", err)
	}
	defer producer.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	hostname, _ := os.Hostname()
	relay := &jobs.Relay{
		Store:       pg.Outbox,
		Publisher:   producer,
		Enqueuer:    client,
		Queue:       cfg.AsynqQueue,
		Owner:       cfg.ServiceName + "@" + hostname,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		Logger:      logger,
	}

	// The snapshot job reuses the summary cache when redis is configured.
	snap := &jobs.Snapshotter{
		Summaries: lifecycle.NewEngine(lifecycle.Options{
			Repos:             pg.Repositories(),
			Logger:            logger,
			ApproachingWindow: cfg.ApproachingWindow(),
		}),
		CacheTTL: cfg.DashboardCacheTTL(),
		Env:      cfg.Env,
		Logger:   logger,
	}
	if cfg.RedisAddr != "" {
		cache, err := cachex.New(cfg)
		if err != nil {
			logger.Warn(ctx, "redis_init_failed", "summary cache disabled", slog.String("error", err.Error()))
		} else {
			defer cache.Close()
			snap.Cache = cache
		}
	}
	if cfg.InfluxURL != "" {
		influx, err := influxx.New(cfg)
		if err != nil {
			logger.Warn(ctx, "influx_init_failed", "snapshot series disabled", slog.String("error", err.Error()))
		} else {
			defer influx.Close()
			snap.Writer = influx
		}
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	mux := asynq.NewServeMux()
	relay.Register(mux)
	snap.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	schedule := []struct {
		spec string
		task string
	}{
		{"@every " + strconv.Itoa(cfg.OutboxScanSec) + "s", jobs.TypeOutboxScan},
		{"@every 1m", jobs.TypeOutboxRelease},
		{"@every " + strconv.Itoa(cfg.ComplianceSnapshotSec) + "s", jobs.TypeComplianceSnapshot},
	}
	for _, s := range schedule {
		if _, err := scheduler.Register(s.spec, asynq.NewTask(s.task, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
			fatal(logger, "scheduler_init_failed", "scheduler init failed", err)
		}
	}
	if err := scheduler.Start(); err != nil {
		fatal(logger, "scheduler_start_failed", "scheduler start failed", err)
	}
	defer scheduler.Shutdown()

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "worker_start", "worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
			slog.Int("snapshot_every_sec", cfg.ComplianceSnapshotSec),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(ctx, "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	server.Shutdown()
	logger.Info(ctx, "worker_stop", "worker stopped")
}
