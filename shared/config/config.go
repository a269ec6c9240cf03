package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	Version          string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	StoreDriver      string
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	AuditEnabled       bool
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string
	KafkaRetryMax int
	KafkaWriteMS  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AsynqRedisAddr    string
	AsynqRedisPass    string
	AsynqRedisDB      int
	AsynqQueue        string
	AsynqConcurrency  int
	AsynqEnabled      bool
	OutboxScanSec     int
	OutboxBatchSize   int
	OutboxMaxAttempts int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	NotifyServiceURL string
	NotifyTimeoutMS  int
	NotifyRetryMax   int

	ApproachingWindowDays int
	EntityLockEnabled     bool
	EntityLockTTLMS       int
	DashboardCacheTTLSec  int
	ComplianceSnapshotSec int
	EscalationUserID      string

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func (c Config) ApproachingWindow() time.Duration {
	return time.Duration(c.ApproachingWindowDays) * 24 * time.Hour
}

func (c Config) EntityLockTTL() time.Duration {
	return time.Duration(c.EntityLockTTLMS) * time.Millisecond
}

func (c Config) DashboardCacheTTL() time.Duration {
	return time.Duration(c.DashboardCacheTTLSec) * time.Second
}

func defaults(service string, port int) Config {
	return Config{
		ServiceName:           service,
		HTTPPort:              port,
		LogLevel:              "info",
		RequestTimeoutMS:      30000,
		StoreDriver:           "postgres",
		DBMaxConns:            10,
		DBMinConns:            1,
		DBConnMaxIdleSec:      300,
		DBConnMaxLifeSec:      1800,
		RateLimitRPS:          20,
		RateLimitBurst:        40,
		KafkaRetryMax:         5,
		KafkaWriteMS:          5000,
		AsynqQueue:            "default",
		AsynqConcurrency:      10,
		OutboxScanSec:         5,
		OutboxBatchSize:       50,
		OutboxMaxAttempts:     20,
		InfluxTimeoutMS:       5000,
		NotifyTimeoutMS:       3000,
		NotifyRetryMax:        2,
		ApproachingWindowDays: 30,
		EntityLockTTLMS:       5000,
		DashboardCacheTTLSec:  60,
		ComplianceSnapshotSec: 300,
		OtelInsecure:          true,
		OtelSampleRatio:       1.0,
	}
}

// Load layers defaults, the config file and the environment, in that order. Bad values are
// reported as problems and the previous value is kept.
func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := defaults(serviceNameDefault, httpPortDefault)
	cfg.Env = envRaw
	cfg.ConfigPath = strings.TrimSpace(os.Getenv("CONFIG_PATH"))

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if cfg.ConfigPath == "" && cfg.Env != "" {
		if root, ok := findRepoRoot(); ok {
			cfg.ConfigPath = defaultConfigFile(root, cfg.Env)
		}
	}

	fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != "")
	problems = append(problems, fileProblems...)
	if ok {
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	}

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	validate(&cfg, httpPortDefault, &problems)
	return cfg, problems
}

func validate(cfg *Config, httpPortDefault int, problems *[]Problem) {
	def := defaults(cfg.ServiceName, httpPortDefault)
	check := func(ok bool, field string, message string, reset func()) {
		if !ok {
			*problems = append(*problems, Problem{Field: field, Message: message})
			reset()
		}
	}

	check(cfg.HTTPPort > 0 && cfg.HTTPPort <= 65535, "HTTP_PORT", "HTTP_PORT must be 1-65535", func() { cfg.HTTPPort = def.HTTPPort })
	check(cfg.RequestTimeoutMS > 0, "REQUEST_TIMEOUT_MS", "REQUEST_TIMEOUT_MS must be > 0", func() { cfg.RequestTimeoutMS = def.RequestTimeoutMS })
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	check(cfg.StoreDriver == "postgres" || cfg.StoreDriver == "memory", "STORE_DRIVER", "STORE_DRIVER must be postgres or memory", func() { cfg.StoreDriver = def.StoreDriver })
	check(cfg.DBMaxConns > 0, "DB_MAX_CONNS", "DB_MAX_CONNS must be > 0", func() { cfg.DBMaxConns = def.DBMaxConns })
	check(cfg.DBMinConns >= 0, "DB_MIN_CONNS", "DB_MIN_CONNS must be >= 0", func() { cfg.DBMinConns = def.DBMinConns })
	check(cfg.DBMinConns <= cfg.DBMaxConns, "DB_MIN_CONNS", "DB_MIN_CONNS must be <= DB_MAX_CONNS", func() { cfg.DBMinConns = cfg.DBMaxConns })
	check(cfg.DBConnMaxIdleSec > 0, "DB_CONN_MAX_IDLE_SECONDS", "DB_CONN_MAX_IDLE_SECONDS must be > 0", func() { cfg.DBConnMaxIdleSec = def.DBConnMaxIdleSec })
	check(cfg.DBConnMaxLifeSec > 0, "DB_CONN_MAX_LIFETIME_SECONDS", "DB_CONN_MAX_LIFETIME_SECONDS must be > 0", func() { cfg.DBConnMaxLifeSec = def.DBConnMaxLifeSec })

	check(cfg.RateLimitRPS >= 0, "RATE_LIMIT_RPS", "RATE_LIMIT_RPS must be >= 0", func() { cfg.RateLimitRPS = def.RateLimitRPS })
	check(cfg.RateLimitBurst > 0, "RATE_LIMIT_BURST", "RATE_LIMIT_BURST must be > 0", func() { cfg.RateLimitBurst = def.RateLimitBurst })

	check(cfg.KafkaRetryMax >= 0, "KAFKA_RETRY_MAX", "KAFKA_RETRY_MAX must be >= 0", func() { cfg.KafkaRetryMax = def.KafkaRetryMax })
	check(cfg.KafkaWriteMS > 0, "KAFKA_WRITE_TIMEOUT_MS", "KAFKA_WRITE_TIMEOUT_MS must be > 0", func() { cfg.KafkaWriteMS = def.KafkaWriteMS })
	check(cfg.RedisDB >= 0, "REDIS_DB", "REDIS_DB must be >= 0", func() { cfg.RedisDB = 0 })
	check(cfg.AsynqRedisDB >= 0, "ASYNQ_REDIS_DB", "ASYNQ_REDIS_DB must be >= 0", func() { cfg.AsynqRedisDB = 0 })
	check(cfg.AsynqConcurrency > 0, "ASYNQ_CONCURRENCY", "ASYNQ_CONCURRENCY must be > 0", func() { cfg.AsynqConcurrency = def.AsynqConcurrency })
	check(cfg.OutboxScanSec > 0, "OUTBOX_SCAN_INTERVAL_SECONDS", "OUTBOX_SCAN_INTERVAL_SECONDS must be > 0", func() { cfg.OutboxScanSec = def.OutboxScanSec })
	check(cfg.OutboxBatchSize > 0, "OUTBOX_BATCH_SIZE", "OUTBOX_BATCH_SIZE must be > 0", func() { cfg.OutboxBatchSize = def.OutboxBatchSize })
	check(cfg.OutboxMaxAttempts > 0, "OUTBOX_MAX_ATTEMPTS", "OUTBOX_MAX_ATTEMPTS must be > 0", func() { cfg.OutboxMaxAttempts = def.OutboxMaxAttempts })
	check(cfg.InfluxTimeoutMS > 0, "INFLUX_TIMEOUT_MS", "INFLUX_TIMEOUT_MS must be > 0", func() { cfg.InfluxTimeoutMS = def.InfluxTimeoutMS })

	check(cfg.NotifyTimeoutMS > 0, "NOTIFY_TIMEOUT_MS", "NOTIFY_TIMEOUT_MS must be > 0", func() { cfg.NotifyTimeoutMS = def.NotifyTimeoutMS })
	check(cfg.NotifyRetryMax >= 0, "NOTIFY_RETRY_MAX", "NOTIFY_RETRY_MAX must be >= 0", func() { cfg.NotifyRetryMax = def.NotifyRetryMax })

	check(cfg.ApproachingWindowDays > 0, "APPROACHING_WINDOW_DAYS", "APPROACHING_WINDOW_DAYS must be > 0", func() { cfg.ApproachingWindowDays = def.ApproachingWindowDays })
	check(cfg.EntityLockTTLMS > 0, "ENTITY_LOCK_TTL_MS", "ENTITY_LOCK_TTL_MS must be > 0", func() { cfg.EntityLockTTLMS = def.EntityLockTTLMS })
	check(cfg.DashboardCacheTTLSec > 0, "DASHBOARD_CACHE_TTL_SECONDS", "DASHBOARD_CACHE_TTL_SECONDS must be > 0", func() { cfg.DashboardCacheTTLSec = def.DashboardCacheTTLSec })
	check(cfg.ComplianceSnapshotSec > 0, "COMPLIANCE_SNAPSHOT_INTERVAL_SECONDS", "COMPLIANCE_SNAPSHOT_INTERVAL_SECONDS must be > 0", func() { cfg.ComplianceSnapshotSec = def.ComplianceSnapshotSec })

	check(cfg.OtelSampleRatio >= 0 && cfg.OtelSampleRatio <= 1, "OTEL_SAMPLE_RATIO", "OTEL_SAMPLE_RATIO must be 0-1", func() { cfg.OtelSampleRatio = def.OtelSampleRatio })
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
	kindFloat
	kindList
)

type binding struct {
	key     string
	aliases []string
	kind    valueKind
	set     func(*Config, any)
}

func str(key string, dst func(*Config) *string, aliases ...string) binding {
	return binding{key: key, aliases: aliases, kind: kindString, set: func(c *Config, v any) { *dst(c) = v.(string) }}
}

func integer(key string, dst func(*Config) *int, aliases ...string) binding {
	return binding{key: key, aliases: aliases, kind: kindInt, set: func(c *Config, v any) { *dst(c) = v.(int) }}
}

func boolean(key string, dst func(*Config) *bool) binding {
	return binding{key: key, kind: kindBool, set: func(c *Config, v any) { *dst(c) = v.(bool) }}
}

func float(key string, dst func(*Config) *float64) binding {
	return binding{key: key, kind: kindFloat, set: func(c *Config, v any) { *dst(c) = v.(float64) }}
}

func list(key string, dst func(*Config) *[]string) binding {
	return binding{key: key, kind: kindList, set: func(c *Config, v any) { *dst(c) = v.([]string) }}
}

var bindings = []binding{
	str("ENV", func(c *Config) *string { return &c.Env }),
	str("SERVICE_NAME", func(c *Config) *string { return &c.ServiceName }),
	str("SERVICE_VERSION", func(c *Config) *string { return &c.Version }),
	integer("HTTP_PORT", func(c *Config) *int { return &c.HTTPPort }, "PORT"),
	str("LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }),
	integer("REQUEST_TIMEOUT_MS", func(c *Config) *int { return &c.RequestTimeoutMS }),

	str("STORE_DRIVER", func(c *Config) *string { return &c.StoreDriver }),
	str("DATABASE_URL", func(c *Config) *string { return &c.DatabaseURL }),
	integer("DB_MAX_CONNS", func(c *Config) *int { return &c.DBMaxConns }),
	integer("DB_MIN_CONNS", func(c *Config) *int { return &c.DBMinConns }),
	integer("DB_CONN_MAX_IDLE_SECONDS", func(c *Config) *int { return &c.DBConnMaxIdleSec }),
	integer("DB_CONN_MAX_LIFETIME_SECONDS", func(c *Config) *int { return &c.DBConnMaxLifeSec }),

	boolean("AUDIT_ENABLED", func(c *Config) *bool { return &c.AuditEnabled }),
	list("CORS_ALLOWED_ORIGINS", func(c *Config) *[]string { return &c.CORSAllowedOrigins }),
	float("RATE_LIMIT_RPS", func(c *Config) *float64 { return &c.RateLimitRPS }),
	integer("RATE_LIMIT_BURST", func(c *Config) *int { return &c.RateLimitBurst }),

	list("KAFKA_BROKERS", func(c *Config) *[]string { return &c.KafkaBrokers }),
	str("KAFKA_CLIENT_ID", func(c *Config) *string { return &c.KafkaClientID }),
	str("KAFKA_GROUP_ID", func(c *Config) *string { return &c.KafkaGroupID }),
	integer("KAFKA_RETRY_MAX", func(c *Config) *int { return &c.KafkaRetryMax }),
	integer("KAFKA_WRITE_TIMEOUT_MS", func(c *Config) *int { return &c.KafkaWriteMS }),

	str("REDIS_ADDR", func(c *Config) *string { return &c.RedisAddr }),
	str("REDIS_PASSWORD", func(c *Config) *string { return &c.RedisPassword }),
	integer("REDIS_DB", func(c *Config) *int { return &c.RedisDB }),

	str("ASYNQ_REDIS_ADDR", func(c *Config) *string { return &c.AsynqRedisAddr }),
	str("ASYNQ_REDIS_PASSWORD", func(c *Config) *string { return &c.AsynqRedisPass }),
	integer("ASYNQ_REDIS_DB", func(c *Config) *int { return &c.AsynqRedisDB }),
	str("ASYNQ_QUEUE", func(c *Config) *string { return &c.AsynqQueue }),
	integer("ASYNQ_CONCURRENCY", func(c *Config) *int { return &c.AsynqConcurrency }),
	boolean("ASYNQ_ENABLED", func(c *Config) *bool { return &c.AsynqEnabled }),
	integer("OUTBOX_SCAN_INTERVAL_SECONDS", func(c *Config) *int { return &c.OutboxScanSec }),
	integer("OUTBOX_BATCH_SIZE", func(c *Config) *int { return &c.OutboxBatchSize }),
	integer("OUTBOX_MAX_ATTEMPTS", func(c *Config) *int { return &c.OutboxMaxAttempts }),

	str("INFLUX_URL", func(c *Config) *string { return &c.InfluxURL }),
	str("INFLUX_TOKEN", func(c *Config) *string { return &c.InfluxToken }),
	str("INFLUX_ORG", func(c *Config) *string { return &c.InfluxOrg }),
	str("INFLUX_BUCKET", func(c *Config) *string { return &c.InfluxBucket }),
	integer("INFLUX_TIMEOUT_MS", func(c *Config) *int { return &c.InfluxTimeoutMS }),

	str("NOTIFY_SERVICE_URL", func(c *Config) *string { return &c.NotifyServiceURL }),
	integer("NOTIFY_TIMEOUT_MS", func(c *Config) *int { return &c.NotifyTimeoutMS }),
	integer("NOTIFY_RETRY_MAX", func(c *Config) *int { return &c.NotifyRetryMax }),

	integer("APPROACHING_WINDOW_DAYS", func(c *Config) *int { return &c.ApproachingWindowDays }),
	boolean("ENTITY_LOCK_ENABLED", func(c *Config) *bool { return &c.EntityLockEnabled }),
	integer("ENTITY_LOCK_TTL_MS", func(c *Config) *int { return &c.EntityLockTTLMS }),
	integer("DASHBOARD_CACHE_TTL_SECONDS", func(c *Config) *int { return &c.DashboardCacheTTLSec }),
	integer("COMPLIANCE_SNAPSHOT_INTERVAL_SECONDS", func(c *Config) *int { return &c.ComplianceSnapshotSec }),
	str("ESCALATION_USER_ID", func(c *Config) *string { return &c.EscalationUserID }),

	boolean("OTEL_ENABLED", func(c *Config) *bool { return &c.OtelEnabled }),
	str("OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) *string { return &c.OtelEndpoint }),
	boolean("OTEL_EXPORTER_OTLP_INSECURE", func(c *Config) *bool { return &c.OtelInsecure }),
	float("OTEL_SAMPLE_RATIO", func(c *Config) *float64 { return &c.OtelSampleRatio }),
}

func (b binding) apply(cfg *Config, raw any, problems *[]Problem) {
	v, err := coerce(b.kind, raw)
	if err != nil {
		*problems = append(*problems, Problem{Field: b.key, Message: b.key + " " + kindMessage(b.kind)})
		return
	}
	b.set(cfg, v)
}

func kindMessage(k valueKind) string {
	switch k {
	case kindInt:
		return "must be an integer"
	case kindBool:
		return "must be a boolean"
	case kindFloat:
		return "must be a number"
	case kindList:
		return "must be a list or comma separated string"
	default:
		return "must be a string"
	}
}

func coerce(kind valueKind, raw any) (any, error) {
	if n, ok := raw.(json.Number); ok {
		raw = n.String()
	}
	switch kind {
	case kindInt:
		return cast.ToIntE(raw)
	case kindBool:
		if s, ok := raw.(string); ok {
			if b, ok := asBool(s); ok {
				return b, nil
			}
			return nil, fmt.Errorf("invalid boolean %q", s)
		}
		return cast.ToBoolE(raw)
	case kindFloat:
		return cast.ToFloat64E(raw)
	case kindList:
		switch t := raw.(type) {
		case string:
			return parseCSV(t), nil
		case []any:
			return parseAnyCSV(t), nil
		}
		return nil, fmt.Errorf("invalid list %T", raw)
	default:
		s, err := cast.ToStringE(raw)
		return strings.TrimSpace(s), err
	}
}

func applyEnv(cfg *Config, problems *[]Problem) {
	for _, b := range bindings {
		for _, key := range append([]string{b.key}, b.aliases...) {
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				b.apply(cfg, v, problems)
				break
			}
		}
	}
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	byKey := make(map[string]binding, len(bindings))
	for _, b := range bindings {
		byKey[b.key] = b
		for _, alias := range b.aliases {
			byKey[alias] = b
		}
	}
	for k, v := range raw {
		if b, ok := byKey[strings.ToUpper(strings.TrimSpace(k))]; ok {
			b.apply(cfg, v, problems)
		}
	}
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// defaultConfigFile prefers configs/<env>.yaml and falls back to configs/<env>.json.
func defaultConfigFile(root string, env string) string {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(root, "configs", env+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(root, "configs", env+".yaml")
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		if explicit {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		return nil, nil, false
	}

	raw, err := decodeConfig(path, b)
	if err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: err.Error()}}, false
	}
	return raw, nil, true
}

func decodeConfig(path string, b []byte) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("invalid yaml: %v", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid json: %v", err)
		}
	}
	return raw, nil
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
