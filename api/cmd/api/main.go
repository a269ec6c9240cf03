package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"facility-compliance-system/api/internal/handlers"
	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/middleware"
	"facility-compliance-system/shared/config"
	"facility-compliance-system/shared/dbx"
	"facility-compliance-system/shared/httpx"
	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/metricsx"
	"facility-compliance-system/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	logger := logx.New(cfg.ServiceName, cfg.Env, cfg.Version, cfg.LogLevel)
	ctx := context.Background()

	if cfg.OtelEnabled {
		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Version:     cfg.Version,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Warn(ctx, "otel_init_failed", "tracing disabled", slog.String("error", err.Error()))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}
	metricsx.Register()

	deps := wire(ctx, cfg, logger)
	readyProblems = append(readyProblems, deps.problems...)
	defer deps.close()

	engine := lifecycle.NewEngine(lifecycle.Options{
		Repos:             deps.repos,
		Notifier:          deps.notifier,
		Locker:            deps.locker,
		Cache:             deps.cache,
		Logger:            logger,
		ApproachingWindow: cfg.ApproachingWindow(),
		SummaryCacheTTL:   cfg.DashboardCacheTTL(),
		EscalationUserID:  cfg.EscalationUserID,
	})
	api := &handlers.Handler{
		Engine:        engine,
		Notifications: deps.notifications,
		History:       deps.history,
		Snapshots:     deps.snapshots,
		Logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: cfg.Version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if deps.pool != nil {
			if err := dbx.Ping(r.Context(), deps.pool); err != nil {
				httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
					"service not ready: database unavailable",
					map[string]any{"problem": "db_ping_failed"},
				)
				return
			}
		}
		if deps.redis != nil {
			if err := deps.redis.Ping(r.Context()); err != nil {
				httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
					"service not ready: redis unavailable",
					map[string]any{"problem": "redis_ping_failed"},
				)
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: cfg.Version,
			Store:   cfg.StoreDriver,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())
	api.Register(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	isHealthCheck := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
	}

	var auditSink *middleware.AuditSink
	auditCtx, stopAudit := context.WithCancel(context.Background())
	if cfg.AuditEnabled && deps.audit != nil {
		auditSink = middleware.NewAuditSink(deps.audit, logger, 4096, 200, time.Second)
		go auditSink.Run(auditCtx)
	}

	withLog := func(next http.Handler) http.Handler {
		return httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, next)
	}
	withRecover := func(next http.Handler) http.Handler { return httpx.WithRecover(logger, next) }
	withTimeout := func(next http.Handler) http.Handler { return httpx.WithTimeout(cfg.RequestTimeout, next) }
	traced := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "api", otelhttp.WithFilter(func(r *http.Request) bool { return !isHealthCheck(r) }))
	}

	handler := httpx.Chain(httpx.WrapServeMux(mux, notFound),
		traced,
		metricsx.Instrument,
		withLog,
		withRecover,
		httpx.WithRequestID,
		withTimeout,
		middleware.CORSMiddleware{AllowedOrigins: cfg.CORSAllowedOrigins, MaxAge: 10 * time.Minute}.Wrap,
		middleware.RateLimitMiddleware{
			Limiter: middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 2*time.Minute),
			Skip:    isHealthCheck,
		}.Wrap,
		middleware.AuditMiddleware{Enabled: cfg.AuditEnabled, Repo: deps.audit, Sink: auditSink, Logger: logger, Skip: isHealthCheck}.Wrap,
		middleware.StoreRequiredMiddleware{Available: deps.repos.Equipment != nil, Store: cfg.StoreDriver, Skip: isHealthCheck}.Wrap,
	)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("store", cfg.StoreDriver),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			deps.close()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	stopAudit()
	if auditSink != nil {
		auditSink.Wait()
		if n := auditSink.Dropped(); n > 0 {
			logger.Warn(ctx, "audit_dropped", "audit entries dropped under load", slog.Int64("dropped", n))
		}
	}
	logger.Info(ctx, "service_stop", "service stopped")
}
