package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel  string
	LogFormat string

	HTTPAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CounterOpTimeout bounds every single counter-store operation.
	// Exceeding it counts as a failed attempt for the retry policy.
	CounterOpTimeout time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration

	ReportWorkers        int
	ReportRetryAttempts  int
	ReportRetryBaseDelay time.Duration
	QueuePollInterval    time.Duration
	QueueName            string

	// StatsBucketInterval is the width of a dirty-stats bucket; the
	// flusher discovers pending work at this granularity.
	StatsBucketInterval time.Duration

	// ErrorListLimit caps the per-service error-transactions collection.
	ErrorListLimit int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "tollgate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		HTTPAddr: getenv("HTTP_ADDR", ":3000"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		CounterOpTimeout: getenvDuration("COUNTER_OP_TIMEOUT", 500*time.Millisecond),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tollgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),

		ReportWorkers:        getenvInt("REPORT_WORKERS", 4),
		ReportRetryAttempts:  getenvInt("REPORT_RETRY_ATTEMPTS", 3),
		ReportRetryBaseDelay: getenvDuration("REPORT_RETRY_BASE_DELAY", 100*time.Millisecond),
		QueuePollInterval:    getenvDuration("QUEUE_POLL_INTERVAL", 100*time.Millisecond),
		QueueName:            getenv("QUEUE_NAME", "report"),

		StatsBucketInterval: getenvDuration("STATS_BUCKET_INTERVAL", 30*time.Second),

		ErrorListLimit: int64(getenvInt("ERROR_LIST_LIMIT", 1000)),
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
