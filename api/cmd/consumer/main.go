package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"facility-compliance-system/api/internal/ingest"
	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/repos"
	"facility-compliance-system/shared/cachex"
	"facility-compliance-system/shared/config"
	"facility-compliance-system/shared/dbx"
	"facility-compliance-system/shared/events"
	"facility-compliance-system/shared/lockx"
	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/metricsx"
	"facility-compliance-system/shared/mqx"
	"facility-compliance-system/shared/observability"
)

func main() {
	cfg, problems := config.Load("status-consumer", 8082)
	logger := logx.New(cfg.ServiceName, cfg.Env, cfg.Version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
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
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer pool.Close()
	pg := repos.NewPostgres(pool)

	opts := lifecycle.Options{
		Repos:             pg.Repositories(),
		Notifier:          pg.Notifications,
		Logger:            logger,
		ApproachingWindow: cfg.ApproachingWindow(),
		SummaryCacheTTL:   cfg.DashboardCacheTTL(),
		EscalationUserID:  cfg.EscalationUserID,
	}
	if cfg.RedisAddr != "" {
		if cache, err := cachex.New(cfg); err == nil {
			defer cache.Close()
			opts.Cache = cache
			if cfg.EntityLockEnabled {
				opts.Locker = lockx.NewLocker(cache.Client(), "lock:", cfg.EntityLockTTL())
			}
		} else {
			logger.Warn(context.Background(), "redis_init_failed", "running without cache and locks", slog.String("error", err.Error()))
		}
	}
	handler := ingest.StatusHandler{Engine: lifecycle.NewEngine(opts), Logger: logger}

	reader, err := mqx.NewConsumer(cfg, events.TopicEquipmentStatus, cfg.KafkaGroupID)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger.Info(ctx, "consumer_start", "equipment status consumer started",
		slog.String("topic", events.TopicEquipmentStatus),
		slog.String("group", cfg.KafkaGroupID),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := consume(ctx, handler, logger, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			// leave uncommitted so the group redelivers after restart
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}

	logger.Info(context.Background(), "consumer_stop", "equipment status consumer stopped")
}

// consume applies one message, retrying transient failures. Malformed reports are logged
// and reported as handled.
func consume(ctx context.Context, handler ingest.StatusHandler, logger logx.Logger, msg kafka.Message) error {
	msgCtx, span := otel.Tracer("mqx").Start(mqx.ConsumerContext(ctx, msg), "kafka.consume")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), msgCtx)
	var outcome ingest.Outcome
	err := backoff.Retry(func() error {
		var err error
		outcome, err = handler.Handle(msgCtx, msg.Value)
		if errors.Is(err, ingest.ErrMalformed) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	switch {
	case errors.Is(err, ingest.ErrMalformed):
		logger.Warn(msgCtx, "status_report_dropped", "dropping malformed status report",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return nil
	case err != nil:
		logger.Error(msgCtx, "event_handle_failed", "failed to apply status report",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return err
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	logger.Debug(msgCtx, "status_report_applied", "status report applied", slog.String("outcome", string(outcome)))
	return nil
}
