package mqx

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"facility-compliance-system/shared/config"
)

func TestHeaders(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{
		{Key: "event_type", Value: []byte("alert_raised")},
		{Key: "event_id", Value: []byte("e-1")},
		{Key: "event_type", Value: []byte("alert_resolved")},
	}}
	got := Headers(msg)
	if got["event_id"] != "e-1" || got["event_type"] != "alert_resolved" {
		t.Fatalf("unexpected headers %#v", got)
	}
}

func TestConsumerContextWithoutTraceHeaders(t *testing.T) {
	ctx := ConsumerContext(context.Background(), kafka.Message{})
	if trace.SpanContextFromContext(ctx).IsValid() {
		t.Fatalf("expected no remote span context")
	}
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(config.Config{}); err == nil {
		t.Fatalf("expected producer error without brokers")
	}
	if _, err := NewConsumer(config.Config{KafkaBrokers: []string{"localhost:9092"}}, "equipment.status", ""); err == nil {
		t.Fatalf("expected consumer error without group")
	}
}

func TestHeaderCarrierRoundTripsTraceContext(t *testing.T) {
	prop := propagation.TraceContext{}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	msg := kafka.Message{Headers: []kafka.Header{{Key: "event_id", Value: []byte("e-1")}}}
	prop.Inject(trace.ContextWithSpanContext(context.Background(), sc), &HeaderCarrier{Headers: &msg.Headers})

	if Headers(msg)["event_id"] != "e-1" || Headers(msg)["traceparent"] == "" {
		t.Fatalf("unexpected headers %#v", Headers(msg))
	}
	got := trace.SpanContextFromContext(prop.Extract(context.Background(), &HeaderCarrier{Headers: &msg.Headers}))
	if got.TraceID() != sc.TraceID() || !got.IsRemote() {
		t.Fatalf("trace context lost: %v", got)
	}
}

func TestHeaderCarrierSetReplaces(t *testing.T) {
	var hs []kafka.Header
	c := &HeaderCarrier{Headers: &hs}
	c.Set("a", "1")
	c.Set("a", "2")
	if len(hs) != 1 || c.Get("a") != "2" || c.Get("missing") != "" {
		t.Fatalf("unexpected headers %#v", hs)
	}
}
