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
	fx.Provide(NewEntitlementPolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Mode        string
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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FrontendURL string
	Gateway     GatewayConfig

	IntentRateLimit IntentRateLimitConfig
	Scheduler       SchedulerConfig
}

// GatewayConfig carries credentials for the hosted checkout provider.
type GatewayConfig struct {
	Provider    string
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	Timeout     time.Duration
}

type IntentRateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type SchedulerConfig struct {
	Enabled           bool
	RunInterval       time.Duration
	BatchSize         int
	PromotionInterval time.Duration
	DisplayInterval   time.Duration
	QuotaInterval     time.Duration
	EnabledJobs       []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "listingboost"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Mode:         normalizeMode(getenv("APP_MODE", ModeMonolith)),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("NODE_ID", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "listingboost"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		FrontendURL: strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		Gateway: GatewayConfig{
			Provider:    strings.ToLower(getenv("PAYMENT_PROVIDER", "payos")),
			BaseURL:     strings.TrimRight(getenv("PAYOS_BASE_URL", "https://api-merchant.payos.vn"), "/"),
			ClientID:    strings.TrimSpace(getenv("PAYOS_CLIENT_ID", "")),
			APIKey:      strings.TrimSpace(getenv("PAYOS_API_KEY", "")),
			ChecksumKey: strings.TrimSpace(getenv("PAYOS_CHECKSUM_KEY", "")),
			Timeout:     getenvDuration("PAYOS_TIMEOUT", 10*time.Second),
		},

		IntentRateLimit: IntentRateLimitConfig{
			Enabled: getenvBool("INTENT_RATE_LIMIT_ENABLED", true),
			Rate:    getenvFloat("INTENT_RATE_LIMIT_RATE", 0.2),
			Burst:   int(getenvInt64("INTENT_RATE_LIMIT_BURST", 5)),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:       getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:         int(getenvInt64("SCHEDULER_BATCH_SIZE", 500)),
			PromotionInterval: getenvDuration("SCHEDULER_PROMOTION_INTERVAL", 6*time.Hour),
			DisplayInterval:   getenvDuration("SCHEDULER_DISPLAY_INTERVAL", 24*time.Hour),
			QuotaInterval:     getenvDuration("SCHEDULER_QUOTA_INTERVAL", 24*time.Hour),
			EnabledJobs:       getenvList("SCHEDULER_ENABLED_JOBS"),
		},
	}

	return cfg
}

const (
	ModeMonolith  = "monolith"
	ModeAPI       = "api"
	ModeScheduler = "scheduler"
)

// RunsScheduler reports whether this process hosts the sweeper loop.
func (c Config) RunsScheduler() bool {
	return c.Mode != ModeAPI && c.Scheduler.Enabled
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeAPI:
		return ModeAPI
	case ModeScheduler:
		return ModeScheduler
	default:
		return ModeMonolith
	}
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
