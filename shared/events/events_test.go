package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	env, err := NewEnvelope(AggregateAlert, "a-1", "alert_raised", map[string]string{"severity": "high"}, at)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.OccurredAt.Location() != time.UTC || !env.OccurredAt.Equal(at) {
		t.Fatalf("expected utc timestamp, got %s", env.OccurredAt)
	}
	var payload map[string]string
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload["severity"] != "high" {
		t.Fatalf("unexpected payload %s (%v)", env.Payload, err)
	}
	if TopicFor(env.AggregateType) != TopicAlertEvents {
		t.Fatalf("unexpected topic %q", TopicFor(env.AggregateType))
	}
	if TopicFor("vendor") != "" {
		t.Fatalf("unknown aggregate should have no topic")
	}
}
