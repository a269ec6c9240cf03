package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"facility-compliance-system/api/internal/models"
	"facility-compliance-system/shared/httpx"
	"facility-compliance-system/shared/logx"
)

type AuditWriter interface {
	WriteAuditLog(ctx context.Context, entries []models.AuditLog) error
}

// AuditMiddleware records every mutating request after it has been served. With a Sink the
// entry is queued for a batched write; without one it is written before returning.
type AuditMiddleware struct {
	Enabled bool
	Repo    AuditWriter
	Sink    *AuditSink
	Logger  logx.Logger
	Skip    func(*http.Request) bool
	Timeout time.Duration
}

var auditedResources = map[string]bool{
	"equipment":   true,
	"alerts":      true,
	"maintenance": true,
	"permits":     true,
	"training":    true,
}

func (m AuditMiddleware) Wrap(next http.Handler) http.Handler {
	if !m.Enabled || (m.Repo == nil && m.Sink == nil) {
		return next
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (m.Skip != nil && m.Skip(r)) || !shouldAudit(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := &auditStatusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		entry := buildAuditEntry(r, sw.status, start)

		if m.Sink != nil {
			m.Sink.Offer(entry)
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
		defer cancel()
		if err := m.Repo.WriteAuditLog(ctx, []models.AuditLog{entry}); err != nil {
			m.Logger.Warn(ctx, "audit_write_failed", "audit write failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
	})
}

func buildAuditEntry(r *http.Request, status int, start time.Time) models.AuditLog {
	resourceType, resourceID, verb := resourceFromPath(r.URL.Path)
	return models.AuditLog{
		OccurredAt:   start.UTC(),
		Actor:        httpx.Actor(r),
		Action:       actionForRequest(r, verb),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    httpx.RequestIDFromContext(r.Context()),
		Method:       r.Method,
		Path:         r.URL.Path,
		StatusCode:   status,
		DurationMS:   time.Since(start).Milliseconds(),
		ClientIP:     httpx.ClientIP(r),
		UserAgent:    strings.TrimSpace(r.UserAgent()),
		Details:      auditDetails(status),
	}
}

type auditStatusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *auditStatusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status, w.wroteHeader = status, true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *auditStatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// AuditSink buffers audit entries and writes them in batches from a single goroutine.
// Entries offered while the buffer is full are dropped and counted.
type AuditSink struct {
	repo      AuditWriter
	logger    logx.Logger
	queue     chan models.AuditLog
	batchSize int
	interval  time.Duration
	timeout   time.Duration
	dropped   atomic.Int64
	done      chan struct{}
}

func NewAuditSink(repo AuditWriter, logger logx.Logger, capacity int, batchSize int, interval time.Duration) *AuditSink {
	if capacity <= 0 {
		capacity = 1024
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &AuditSink{
		repo:      repo,
		logger:    logger,
		queue:     make(chan models.AuditLog, capacity),
		batchSize: batchSize,
		interval:  interval,
		timeout:   5 * time.Second,
		done:      make(chan struct{}),
	}
}

func (s *AuditSink) Offer(entry models.AuditLog) bool {
	select {
	case s.queue <- entry:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *AuditSink) Dropped() int64 { return s.dropped.Load() }

// Run flushes until ctx is cancelled, then drains what is already queued and returns.
func (s *AuditSink) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	batch := make([]models.AuditLog, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.repo.WriteAuditLog(wctx, batch); err != nil {
			s.logger.Warn(wctx, "audit_write_failed", "audit batch write failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.Int("entries", len(batch)),
				slog.String("error", err.Error()),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.queue:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.queue:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (s *AuditSink) Wait() { <-s.done }

func shouldAudit(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// actionForRequest prefers the command verb of /resource/{id}/{verb} routes.
func actionForRequest(r *http.Request, verb string) string {
	if verb != "" {
		return verb
	}
	switch r.Method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func auditDetails(statusCode int) []byte {
	b, err := json.Marshal(map[string]any{
		"status_code": statusCode,
		"outcome":     outcome(statusCode),
	})
	if err != nil {
		return nil
	}
	return b
}

func outcome(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "error"
	case statusCode >= 400:
		return "rejected"
	default:
		return "ok"
	}
}

func resourceFromPath(path string) (*string, *string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		return nil, nil, ""
	}
	resource := parts[2]
	if !auditedResources[resource] {
		return nil, nil, ""
	}
	var id *string
	if len(parts) >= 4 {
		val := strings.TrimSpace(parts[3])
		if val != "" {
			id = &val
		}
	}
	verb := ""
	if len(parts) >= 5 {
		verb = parts[len(parts)-1]
	}
	return &resource, id, verb
}
