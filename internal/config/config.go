package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string
	// NodeID seeds snowflake ids; -1 lets each binary pick its own default.
	NodeID int

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string
	DBSlowQuery       time.Duration

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Slack     SlackConfig
	Scheduler SchedulerConfig
	Seed      SeedConfig
	Telemetry TelemetryConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled          bool
	UsageIngestRate  float64
	UsageIngestBurst int
	// Zero disables the tenant-wide bucket.
	TenantIngestRate  float64
	TenantIngestBurst int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Enabled reports whether every SMTP setting is present.
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.SMTPPort > 0 && c.SMTPUsername != "" && c.SMTPPassword != "" && c.SMTPFrom != ""
}

type SlackConfig struct {
	WebhookURL   string
	AlertChannel string
}

type SchedulerConfig struct {
	Enabled      bool
	CronSpec     string
	RunInterval  time.Duration
	BatchSize    int
	UseBatchLock bool
	LockTTL      time.Duration
	// LastDayOnly skips triggers that do not fall on the last day of the month.
	LastDayOnly bool
	// RetryAttempts re-runs a triggered batch that left failures. Negative disables.
	RetryAttempts int
	RetryInterval time.Duration
}

// TelemetryConfig feeds the zap logger and the otel exporters.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// SeedConfig names the operator tenant and superadmin created on first boot.
type SeedConfig struct {
	Enabled    bool
	TenantName string
	AdminName  string
	AdminEmail string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "meterbill"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt("SNOWFLAKE_NODE_ID", -1),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "meterbill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "meterbill.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogLevel:        strings.ToLower(strings.TrimSpace(getenv("DATABASE_LOG_LEVEL", "warn"))),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", false),
			UsageIngestRate:   getenvFloat("RATE_LIMIT_USAGE_INGEST_RATE", 50),
			UsageIngestBurst:  getenvInt("RATE_LIMIT_USAGE_INGEST_BURST", 100),
			TenantIngestRate:  getenvFloat("RATE_LIMIT_TENANT_INGEST_RATE", 0),
			TenantIngestBurst: getenvInt("RATE_LIMIT_TENANT_INGEST_BURST", 0),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 0),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     strings.TrimSpace(getenv("EMAIL_SENDER", "")),
		},
		Slack: SlackConfig{
			WebhookURL:   strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			AlertChannel: strings.TrimSpace(getenv("SLACK_ALERT_CHANNEL", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getenvBool("SCHEDULER_ENABLED", true),
			CronSpec:      strings.TrimSpace(getenv("SCHEDULER_CRON", "0 2 * * *")),
			RunInterval:   getenvDuration("SCHEDULER_RUN_INTERVAL", 24*time.Hour),
			BatchSize:     getenvInt("SCHEDULER_BATCH_SIZE", 100),
			UseBatchLock:  getenvBool("SCHEDULER_BATCH_LOCK", true),
			LockTTL:       getenvDuration("SCHEDULER_LOCK_TTL", 30*time.Minute),
			LastDayOnly:   getenvBool("SCHEDULER_LAST_DAY_ONLY", true),
			RetryAttempts: getenvInt("SCHEDULER_RETRY_ATTEMPTS", 3),
			RetryInterval: getenvDuration("SCHEDULER_RETRY_INTERVAL", time.Hour),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Seed: SeedConfig{
			Enabled:    getenvBool("SEED_ENABLED", true),
			TenantName: strings.TrimSpace(getenv("SEED_TENANT_NAME", "Operator")),
			AdminName:  strings.TrimSpace(getenv("SEED_ADMIN_NAME", "Operator Admin")),
			AdminEmail: strings.TrimSpace(getenv("SEED_ADMIN_EMAIL", "admin@meterbill.local")),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
