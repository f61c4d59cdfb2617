package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

/* Config is loaded from an optional .env file (TOML) in the working
 * directory and from the environment. Every key has a default, so an
 * environment-only deployment works.
 */

// Backend names
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"

	SourceFile     = "file"
	SourcePostgres = "postgres"

	HandlerLog     = "log"
	HandlerForward = "forward"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogJSON  bool   `mapstructure:"LOG_JSON"`

	QueueBackend      string `mapstructure:"QUEUE_BACKEND"`
	LedgerBackend     string `mapstructure:"LEDGER_BACKEND"`
	MetricsBackend    string `mapstructure:"METRICS_BACKEND"`
	IntegrationSource string `mapstructure:"INTEGRATION_SOURCE"`
	IntegrationsFile  string `mapstructure:"INTEGRATIONS_FILE"`

	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	PostgresMaxOpenConns       int    `mapstructure:"POSTGRES_MAX_OPEN_CONNS"`
	PostgresMaxIdleConns       int    `mapstructure:"POSTGRES_MAX_IDLE_CONNS"`
	PostgresConnMaxLifeMinutes int    `mapstructure:"POSTGRES_CONN_MAX_LIFE_MINUTES"`
	RedisAddr                  string `mapstructure:"REDIS_ADDR"`
	RedisPassword              string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                    int    `mapstructure:"REDIS_DB"`

	WorkerPoolSize      int           `mapstructure:"WORKER_POOL_SIZE"`
	WorkerPollInterval  time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
	WorkerShutdownGrace time.Duration `mapstructure:"WORKER_SHUTDOWN_GRACE"`
	HandlerTimeout      time.Duration `mapstructure:"HANDLER_TIMEOUT"`
	InlineTimeout       time.Duration `mapstructure:"INLINE_TIMEOUT"`

	RetryBase        time.Duration `mapstructure:"RETRY_BASE"`
	RetryCap         time.Duration `mapstructure:"RETRY_CAP"`
	RetryMaxAttempts int           `mapstructure:"RETRY_MAX_ATTEMPTS"`

	FreshnessWindow    time.Duration `mapstructure:"FRESHNESS_WINDOW"`
	IdempotencyTTL     time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	CompletedRetention time.Duration `mapstructure:"COMPLETED_RETENTION"`
	StaleClaimTimeout  time.Duration `mapstructure:"STALE_CLAIM_TIMEOUT"`
	CleanupInterval    time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	HealthWindow       time.Duration `mapstructure:"HEALTH_WINDOW"`

	RegistrySize int           `mapstructure:"REGISTRY_SIZE"`
	RegistryTTL  time.Duration `mapstructure:"REGISTRY_TTL"`

	OpsToken      string `mapstructure:"OPS_TOKEN"`
	HandlerMode   string `mapstructure:"HANDLER_MODE"`
	ForwardURL    string `mapstructure:"FORWARD_URL"`
	ForwardSecret string `mapstructure:"FORWARD_SECRET"`
}

var defaults = map[string]any{
	"PORT":                           "8080",
	"LOG_LEVEL":                      "info",
	"LOG_JSON":                       true,
	"QUEUE_BACKEND":                  BackendPostgres,
	"LEDGER_BACKEND":                 BackendPostgres,
	"METRICS_BACKEND":                BackendPostgres,
	"INTEGRATION_SOURCE":             SourceFile,
	"INTEGRATIONS_FILE":              "integrations.yaml",
	"DATABASE_URL":                   "",
	"POSTGRES_MAX_OPEN_CONNS":        25,
	"POSTGRES_MAX_IDLE_CONNS":        5,
	"POSTGRES_CONN_MAX_LIFE_MINUTES": 5,
	"REDIS_ADDR":                     "localhost:6379",
	"REDIS_PASSWORD":                 "",
	"REDIS_DB":                       0,
	"WORKER_POOL_SIZE":               10,
	"WORKER_POLL_INTERVAL":           "1s",
	"WORKER_SHUTDOWN_GRACE":          "25s",
	"HANDLER_TIMEOUT":                "30s",
	"INLINE_TIMEOUT":                 "3s",
	"RETRY_BASE":                     "60s",
	"RETRY_CAP":                      "1h",
	"RETRY_MAX_ATTEMPTS":             5,
	"FRESHNESS_WINDOW":               "5m",
	"IDEMPOTENCY_TTL":                "24h",
	"COMPLETED_RETENTION":            "168h",
	"STALE_CLAIM_TIMEOUT":            "10m",
	"CLEANUP_INTERVAL":               "1h",
	"HEALTH_WINDOW":                  "24h",
	"REGISTRY_SIZE":                  1024,
	"REGISTRY_TTL":                   "5m",
	"OPS_TOKEN":                      "",
	"HANDLER_MODE":                   HandlerLog,
	"FORWARD_URL":                    "",
	"FORWARD_SECRET":                 "",
}

// GetConfig loads .env from the working directory and the environment
func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads .env from dir, when present, and the environment
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

// Validate rejects inconsistent combinations
func (c *Config) Validate() error {
	var errs []error

	for name, backend := range map[string]string{
		"QUEUE_BACKEND":   c.QueueBackend,
		"LEDGER_BACKEND":  c.LedgerBackend,
		"METRICS_BACKEND": c.MetricsBackend,
	} {
		switch backend {
		case BackendPostgres, BackendRedis, BackendMemory:
		default:
			errs = append(errs, fmt.Errorf("%s must be postgres, redis or memory (got %q)", name, backend))
		}
	}

	switch c.IntegrationSource {
	case SourceFile:
		if c.IntegrationsFile == "" {
			errs = append(errs, fmt.Errorf("INTEGRATIONS_FILE is required when INTEGRATION_SOURCE=file"))
		}
	case SourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("INTEGRATION_SOURCE must be file or postgres (got %q)", c.IntegrationSource))
	}

	if c.NeedsPostgres() && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required by the postgres backends"))
	}
	if c.NeedsRedis() && c.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required by the redis backends"))
	}

	switch c.HandlerMode {
	case HandlerLog:
	case HandlerForward:
		if c.ForwardURL == "" {
			errs = append(errs, fmt.Errorf("FORWARD_URL is required when HANDLER_MODE=forward"))
		}
	default:
		errs = append(errs, fmt.Errorf("HANDLER_MODE must be log or forward (got %q)", c.HandlerMode))
	}

	if c.WorkerPoolSize < 1 {
		errs = append(errs, fmt.Errorf("WORKER_POOL_SIZE must be at least 1"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.RetryBase <= 0 || c.RetryCap < c.RetryBase {
		errs = append(errs, fmt.Errorf("RETRY_CAP must not be below RETRY_BASE, and RETRY_BASE must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errors.Join(errs...)
}

// NeedsPostgres reports whether any component uses PostgreSQL
func (c *Config) NeedsPostgres() bool {
	return c.QueueBackend == BackendPostgres ||
		c.LedgerBackend == BackendPostgres ||
		c.MetricsBackend == BackendPostgres ||
		c.IntegrationSource == SourcePostgres
}

// NeedsRedis reports whether any component uses Redis
func (c *Config) NeedsRedis() bool {
	return c.QueueBackend == BackendRedis ||
		c.LedgerBackend == BackendRedis ||
		c.MetricsBackend == BackendRedis
}
