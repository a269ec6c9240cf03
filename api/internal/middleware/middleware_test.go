package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"facility-compliance-system/api/internal/models"
	"facility-compliance-system/shared/httpx"
	"facility-compliance-system/shared/logx"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *recordingAudit) WriteAuditLog(_ context.Context, entries []models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
	return nil
}

func TestAuditRecordsCommandVerbAndActor(t *testing.T) {
	repo := &recordingAudit{}
	h := AuditMiddleware{Enabled: true, Repo: repo, Logger: logx.Nop()}.Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusConflict) }),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/a-1/acknowledge", nil)
	req.Header.Set(httpx.ActorHeader, "safety-officer")
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))

	if len(repo.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.Action != "acknowledge" || e.Actor != "safety-officer" || e.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.ResourceType == nil || *e.ResourceType != "alerts" || e.ResourceID == nil || *e.ResourceID != "a-1" {
		t.Fatalf("unexpected resource %v %v", e.ResourceType, e.ResourceID)
	}
}

func TestAuditSinkBatchesAndDrains(t *testing.T) {
	repo := &recordingAudit{}
	sink := NewAuditSink(repo, logx.Nop(), 2, 10, time.Hour)
	if !sink.Offer(models.AuditLog{Action: "create"}) || !sink.Offer(models.AuditLog{Action: "close"}) {
		t.Fatalf("expected queue to accept entries")
	}
	if sink.Offer(models.AuditLog{Action: "overflow"}) || sink.Dropped() != 1 {
		t.Fatalf("expected full queue to drop, dropped=%d", sink.Dropped())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)
	sink.Wait()

	if len(repo.entries) != 2 || repo.entries[0].Action != "create" || repo.entries[1].Action != "close" {
		t.Fatalf("expected queued entries to be drained, got %+v", repo.entries)
	}
}

func TestAuditMiddlewareQueuesToSink(t *testing.T) {
	repo := &recordingAudit{}
	sink := NewAuditSink(repo, logx.Nop(), 8, 8, time.Hour)
	h := AuditMiddleware{Enabled: true, Sink: sink, Logger: logx.Nop()}.Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) }),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/permits", nil))
	if len(repo.entries) != 0 {
		t.Fatalf("sink writes must not happen on the request path")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)
	if len(repo.entries) != 1 || repo.entries[0].Action != "create" || repo.entries[0].StatusCode != http.StatusCreated {
		t.Fatalf("unexpected entries %+v", repo.entries)
	}
}

func TestAuditActionFallsBackToMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/equipment/eq-1", nil)
	resource, id, verb := resourceFromPath(req.URL.Path)
	if resource == nil || *resource != "equipment" || id == nil || *id != "eq-1" || verb != "" {
		t.Fatalf("unexpected parse %v %v %q", resource, id, verb)
	}
	if actionForRequest(req, verb) != "delete" {
		t.Fatalf("expected delete")
	}
	if r, _, _ := resourceFromPath("/api/v1/vendors/1"); r != nil {
		t.Fatalf("unknown resources are not attributed")
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	l := NewIPRateLimiter(1, 2, time.Minute)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst should be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("other clients keep their own bucket")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("token should refill after a second")
	}
	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if _, ok := l.clients["a"]; ok {
		t.Fatalf("idle client should be forgotten")
	}
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	h := RateLimitMiddleware{Limiter: NewIPRateLimiter(1, 1, time.Minute)}.Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if first.Code != http.StatusNoContent || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %d %d", first.Code, second.Code)
	}
}

func TestRateLimitKeysByActorThenIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := rateLimitKey(req); got != "ip:10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
	req.Header.Set(httpx.ActorHeader, "inspector-4")
	if got := rateLimitKey(req); got != "actor:inspector-4" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRateLimiterReportsWait(t *testing.T) {
	l := NewIPRateLimiter(0.5, 1, time.Minute)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	if ok, _ := l.Take("a"); !ok {
		t.Fatalf("first request should pass")
	}
	ok, wait := l.Take("a")
	if ok || wait != 2*time.Second {
		t.Fatalf("expected 2s wait, got ok=%v wait=%s", ok, wait)
	}
	now = now.Add(2 * time.Second)
	if ok, _ := l.Take("a"); !ok {
		t.Fatalf("refused request must not consume the refilled token")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORSMiddleware{AllowedOrigins: []string{"https://ops.example"}, MaxAge: time.Hour}.Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Fatalf("preflight reached handler") }),
	)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/permits", nil)
	req.Header.Set("Origin", "https://ops.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://ops.example" || rec.Header().Get("Access-Control-Max-Age") != "3600" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
}

func TestCORSOriginPatterns(t *testing.T) {
	match := originMatcher([]string{"https://ops.example", "https://*.plant.example"})
	cases := map[string]bool{
		"https://ops.example":         true,
		"https://OPS.example":         true,
		"https://north.plant.example": true,
		"https://plant.example":       false,
		"http://north.plant.example":  false,
		"https://evil.example":        false,
	}
	for origin, want := range cases {
		if got, _ := match(origin); got != want {
			t.Fatalf("origin %s: expected %v, got %v", origin, want, got)
		}
	}
	if ok, wild := originMatcher(nil)("https://x.example"); !ok || !wild {
		t.Fatalf("empty list should allow any origin")
	}
}

func TestCORSRejectsUnknownPreflight(t *testing.T) {
	h := CORSMiddleware{AllowedOrigins: []string{"https://ops.example"}}.Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Fatalf("preflight reached handler") }),
	)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
}

func TestStoreRequired(t *testing.T) {
	h := StoreRequiredMiddleware{Store: "postgres", Skip: func(r *http.Request) bool { return r.URL.Path == "/healthz" }}.Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/equipment", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected skip, got %d", rec.Code)
	}
}
