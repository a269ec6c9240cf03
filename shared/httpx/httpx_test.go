package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"facility-compliance-system/shared/logx"
)

func TestWriteErrorCarriesRequestID(t *testing.T) {
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusConflict, "INVALID_TRANSITION", "nope", map[string]string{"id": "a-1"})
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id header not echoed")
	}
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "INVALID_TRANSITION" || env.Error.RequestID != "req-123" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	cases := []struct {
		raw     string
		wantErr bool
	}{
		{`{"name":"pump"}`, false},
		{``, true},
		{`{"name":"pump","extra":1}`, true},
		{`{"name":"a"}{"name":"b"}`, true},
		{`{"name":`, true},
	}
	for _, tc := range cases {
		var dst body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.raw))
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		if (err != nil) != tc.wantErr {
			t.Fatalf("body %q: wantErr=%v got %v", tc.raw, tc.wantErr, err)
		}
	}
}

func TestWithRecover(t *testing.T) {
	h := WithRecover(logx.Nop(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWithTimeout(t *testing.T) {
	h := WithTimeout(20*time.Millisecond, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

func TestWrapServeMuxPopulatesPathValues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	})
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := WrapServeMux(mux, fallback)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/a-9", nil))
	if !strings.Contains(rec.Body.String(), `"a-9"`) {
		t.Fatalf("path value missing: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected fallback, got %d", rec.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("outer"), nil, mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "outer,inner,handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestWithRequestIDReplacesMalformedIDs(t *testing.T) {
	h := WithRequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for _, incoming := range []string{"", "has space", strings.Repeat("x", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, incoming)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get(RequestIDHeader)
		if got == "" || got == incoming {
			t.Fatalf("incoming %q should have been replaced, got %q", incoming, got)
		}
	}
}

func TestWithTimeoutPassesThroughFastHandlers(t *testing.T) {
	h := WithTimeout(time.Second, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		WriteJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusCreated || rec.Header().Get("X-Test") != "1" || !strings.Contains(rec.Body.String(), `"yes"`) {
		t.Fatalf("unexpected response %d %v %s", rec.Code, rec.Header(), rec.Body.String())
	}
}

func TestTimeoutWriterRejectsLateWrites(t *testing.T) {
	tw := &timeoutWriter{header: make(http.Header)}
	tw.timedOut = true
	if _, err := tw.Write([]byte("late")); err != http.ErrHandlerTimeout {
		t.Fatalf("expected ErrHandlerTimeout, got %v", err)
	}
}

func TestPanicInsideTimeoutReachesRecover(t *testing.T) {
	h := WithRecover(logx.Nop(), WithTimeout(time.Second, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
