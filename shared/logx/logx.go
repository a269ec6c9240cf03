package logx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Logger writes one JSON object per event. Every line carries an event name, a human
// message and, when ctx holds a sampled span, its trace and span ids.
type Logger struct {
	slog *slog.Logger
	env  string
}

var renamedKeys = map[string]string{
	slog.TimeKey:    "ts",
	slog.LevelKey:   "level",
	slog.MessageKey: "event",
}

func New(service string, env string, version string, level string) Logger {
	return NewWithWriter(os.Stdout, service, env, version, level)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, service string, env string, version string, level string) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				if k, ok := renamedKeys[a.Key]; ok {
					a.Key = k
				}
			}
			return a
		},
	})

	static := []any{slog.String("service", service), slog.String("env", env)}
	if v := strings.TrimSpace(version); v != "" {
		static = append(static, slog.String("version", v))
	}
	return Logger{slog: slog.New(handler).With(static...), env: env}
}

func Nop() Logger {
	return Logger{slog: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func (l Logger) With(attrs ...slog.Attr) Logger {
	if l.slog == nil || len(attrs) == 0 {
		return l
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	l.slog = l.slog.With(args...)
	return l
}

func (l Logger) Debug(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelDebug, event, msg, attrs)
}

func (l Logger) Info(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelInfo, event, msg, attrs)
}

func (l Logger) Warn(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelWarn, event, msg, attrs)
}

func (l Logger) Error(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelError, event, msg, attrs)
}

func (l Logger) emit(ctx context.Context, level slog.Level, event string, msg string, attrs []slog.Attr) {
	if l.slog == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slog.Enabled(ctx, level) {
		return
	}
	// The slog message slot holds the event name, so the text goes under "message".
	attrs = append(attrs, slog.String("message", msg))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	l.slog.LogAttrs(ctx, level, event, attrs...)
}

func (l Logger) Env() string { return l.env }

// ParseLevel maps LOG_LEVEL values to slog levels; unknown values mean info.
func ParseLevel(raw string) slog.Level {
	var level slog.Level
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "warning":
		level = slog.LevelWarn
	case "":
		level = slog.LevelInfo
	default:
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	return level
}
