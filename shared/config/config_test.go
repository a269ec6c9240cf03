package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func writeFile(t *testing.T, name string, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func hasProblem(problems []Problem, field string) bool {
	for _, p := range problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	path := writeFile(t, "test.yaml", `
ENV: test
STORE_DRIVER: memory
APPROACHING_WINDOW_DAYS: 14
ENTITY_LOCK_ENABLED: yes
KAFKA_BROKERS:
  - kafka-1:9092
  - kafka-2:9092
RATE_LIMIT_RPS: 2.5
`)
	t.Setenv("ENV", "")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("APPROACHING_WINDOW_DAYS", "21")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, problems := Load("api", 8080)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.Env != "test" || cfg.StoreDriver != "memory" {
		t.Fatalf("file values not applied: env=%q store=%q", cfg.Env, cfg.StoreDriver)
	}
	if cfg.ApproachingWindowDays != 21 {
		t.Fatalf("expected env to override file, got %d", cfg.ApproachingWindowDays)
	}
	if cfg.ApproachingWindow() != 21*24*time.Hour {
		t.Fatalf("unexpected window %s", cfg.ApproachingWindow())
	}
	if !cfg.EntityLockEnabled {
		t.Fatalf("expected entity lock enabled")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %#v", cfg.KafkaBrokers)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %#v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected rps %v", cfg.RateLimitRPS)
	}
	if cfg.HTTPPort != 8080 || cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("defaults not kept: port=%d timeout=%s", cfg.HTTPPort, cfg.RequestTimeout)
	}
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "test.json", `{"ENV":"test","DB_MAX_CONNS":4,"OTEL_SAMPLE_RATIO":0.25,"AUDIT_ENABLED":true}`)
	t.Setenv("ENV", "")
	t.Setenv("CONFIG_PATH", path)

	cfg, problems := Load("worker", 8081)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.DBMaxConns != 4 || cfg.OtelSampleRatio != 0.25 || !cfg.AuditEnabled {
		t.Fatalf("json values not applied: %+v", cfg)
	}
}

func TestLoadCollectsProblems(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "")
	t.Setenv("HTTP_PORT", "99999")
	t.Setenv("NOTIFY_RETRY_MAX", "many")
	t.Setenv("ENTITY_LOCK_ENABLED", "maybe")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg, problems := Load("api", 8080)
	for _, field := range []string{"ENV", "HTTP_PORT", "NOTIFY_RETRY_MAX", "ENTITY_LOCK_ENABLED", "STORE_DRIVER"} {
		if !hasProblem(problems, field) {
			t.Fatalf("expected problem for %s in %#v", field, problems)
		}
	}
	if cfg.HTTPPort != 8080 || cfg.NotifyRetryMax != 2 || cfg.StoreDriver != "postgres" {
		t.Fatalf("expected defaults to be restored: %+v", cfg)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected env fallback dev, got %q", cfg.Env)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	_, problems := Load("api", 8080)
	if !hasProblem(problems, "CONFIG_PATH") {
		t.Fatalf("expected CONFIG_PATH problem, got %#v", problems)
	}
}
