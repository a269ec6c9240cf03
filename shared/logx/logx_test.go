package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestLoggerWritesRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "api", "test", "1.2.3", "info").With(slog.String("component", "engine"))
	l.Info(context.Background(), "lifecycle_transition", "alert acknowledged", slog.String("entity_id", "a-1"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for key, want := range map[string]string{
		"event":     "lifecycle_transition",
		"message":   "alert acknowledged",
		"service":   "api",
		"env":       "test",
		"version":   "1.2.3",
		"component": "engine",
		"entity_id": "a-1",
		"level":     "INFO",
	} {
		if got, _ := line[key].(string); got != want {
			t.Fatalf("expected %s=%q, got %q", key, want, got)
		}
	}
	if _, ok := line["ts"]; !ok {
		t.Fatalf("expected ts key in %v", line)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "api", "test", "", "warn")
	l.Info(context.Background(), "ignored", "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Warn(context.Background(), "kept", "should appear")
	if buf.Len() == 0 {
		t.Fatalf("expected warn to be written")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	l.Error(context.Background(), "noop", "nothing happens")
	Nop().Info(context.Background(), "noop", "nothing happens")
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "consumer", "test", "", "info")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x01},
		SpanID:     trace.SpanID{0x0b, 0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	l.Info(ctx, "status_ingested", "equipment fault recorded")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["trace_id"] != sc.TraceID().String() || line["span_id"] != sc.SpanID().String() {
		t.Fatalf("missing trace correlation in %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
