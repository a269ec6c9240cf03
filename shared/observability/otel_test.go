package observability

import (
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSamplerBounds(t *testing.T) {
	params := sdktrace.SamplingParameters{ParentContext: context.Background(), TraceID: trace.TraceID{0xff, 0xff}}
	if got := Sampler(1).ShouldSample(params).Decision; got != sdktrace.RecordAndSample {
		t.Fatalf("ratio 1 should sample, got %v", got)
	}
	if got := Sampler(0).ShouldSample(params).Decision; got != sdktrace.Drop {
		t.Fatalf("ratio 0 should drop, got %v", got)
	}
	if !strings.Contains(Sampler(0.25).Description(), "TraceIDRatioBased") {
		t.Fatalf("unexpected sampler %s", Sampler(0.25).Description())
	}
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "api"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
