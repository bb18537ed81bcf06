package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewInvoicingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit RateLimitConfig

	NumberingLockTTL time.Duration

	CORSAllowedOrigins []string

	Observability ObservabilityConfig

	Scheduler SchedulerConfig

	Bootstrap BootstrapConfig
}

// ObservabilityConfig carries log and OpenTelemetry settings. QueryLogLevel
// is one of silent, error, warn or info.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	QueryLogLevel string
	SlowQuery     time.Duration

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

// SchedulerConfig drives the background jobs. An empty Jobs list runs every
// job.
type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	Jobs      []string
}

// BootstrapConfig seeds one business with an admin member and bearer token
// for local and self-hosted setups. Nothing is seeded when BusinessName is
// empty.
type BootstrapConfig struct {
	BusinessID   int64
	BusinessName string
	AdminUserID  int64
	AdminToken   string
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "quoteflow"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quoteflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvFloat("RATE_LIMIT_RATE", 5),
			Burst:   int(getenvInt64("RATE_LIMIT_BURST", 20)),
		},
		NumberingLockTTL:   time.Duration(getenvInt64("NUMBERING_LOCK_TTL_MS", 2000)) * time.Millisecond,
		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "")),
		Observability: ObservabilityConfig{
			LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
			QueryLogLevel:     strings.ToLower(getenv("DATABASE_LOG_LEVEL", "warn")),
			SlowQuery:         time.Duration(getenvInt64("DATABASE_SLOW_QUERY_MS", 200)) * time.Millisecond,
			OtelEnabled:       getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OtelProtocol:      strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Scheduler: SchedulerConfig{
			Enabled:   getenvBool("SCHEDULER_ENABLED", true),
			Interval:  time.Duration(getenvInt64("SCHEDULER_INTERVAL_SECONDS", 300)) * time.Second,
			BatchSize: int(getenvInt64("SCHEDULER_BATCH_SIZE", 100)),
			Jobs:      splitList(getenv("SCHEDULER_JOBS", "")),
		},
		Bootstrap: BootstrapConfig{
			BusinessID:   getenvInt64("BOOTSTRAP_BUSINESS_ID", 0),
			BusinessName: strings.TrimSpace(getenv("BOOTSTRAP_BUSINESS_NAME", "")),
			AdminUserID:  getenvInt64("BOOTSTRAP_ADMIN_USER_ID", 0),
			AdminToken:   strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_TOKEN", "")),
		},
	}

	if cfg.Observability.OtelEndpoint == "" {
		cfg.Observability.OtelEndpoint = cfg.OTLPEndpoint
	}
	if protocol := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); protocol != "" {
		cfg.Observability.OtelProtocol = strings.ToLower(protocol)
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
