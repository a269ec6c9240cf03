package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"facility-compliance-system/shared/config"
)

func TestSendPostsRecord(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newClient(srv.URL+"/", time.Second, 2, time.Millisecond)
	err := c.Send(context.Background(), Notification{UserID: "u1", Type: "alert_raised", Message: "boiler", Priority: "high"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.UserID != "u1" || got.Priority != "high" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newClient(srv.URL, time.Second, 3, time.Millisecond)
	if err := c.Send(context.Background(), Notification{UserID: "u1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad user", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newClient(srv.URL, time.Second, 3, time.Millisecond)
	err := c.Send(context.Background(), Notification{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 status error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(srv.URL, time.Second, 0, time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := c.Send(context.Background(), Notification{}); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}
	if c.State() != "open" {
		t.Fatalf("expected open breaker, got %s", c.State())
	}
	if err := c.Send(context.Background(), Notification{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open, got %v", err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(config.Config{}); err == nil {
		t.Fatalf("expected error without NOTIFY_SERVICE_URL")
	}
}
