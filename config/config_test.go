package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcelsud/commerce-webhooks/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("success - defaults without a .env file", func(t *testing.T) {
		t.Setenv("QUEUE_BACKEND", "memory")
		t.Setenv("LEDGER_BACKEND", "memory")
		t.Setenv("METRICS_BACKEND", "memory")

		cfg, err := config.Load(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 10, cfg.WorkerPoolSize)
		assert.Equal(t, time.Second, cfg.WorkerPollInterval)
		assert.Equal(t, 60*time.Second, cfg.RetryBase)
		assert.Equal(t, time.Hour, cfg.RetryCap)
		assert.Equal(t, 5, cfg.RetryMaxAttempts)
		assert.Equal(t, 5*time.Minute, cfg.FreshnessWindow)
		assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
		assert.Equal(t, 3*time.Second, cfg.InlineTimeout)
		assert.Equal(t, 1024, cfg.RegistrySize)
		assert.Equal(t, config.HandlerLog, cfg.HandlerMode)
		assert.False(t, cfg.NeedsPostgres())
		assert.False(t, cfg.NeedsRedis())
	})

	t.Run("success - .env file and environment overrides", func(t *testing.T) {
		dir := t.TempDir()
		content := "QUEUE_BACKEND = \"redis\"\nLEDGER_BACKEND = \"redis\"\nMETRICS_BACKEND = \"memory\"\nWORKER_POOL_SIZE = 4\nRETRY_BASE = \"30s\"\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))
		t.Setenv("WORKER_POOL_SIZE", "6")
		t.Setenv("REDIS_ADDR", "redis:6379")

		cfg, err := config.Load(dir)
		require.NoError(t, err)

		assert.Equal(t, config.BackendRedis, cfg.QueueBackend)
		assert.Equal(t, 6, cfg.WorkerPoolSize)
		assert.Equal(t, 30*time.Second, cfg.RetryBase)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.True(t, cfg.NeedsRedis())
	})

	t.Run("error - postgres backend without DATABASE_URL", func(t *testing.T) {
		t.Setenv("QUEUE_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")

		_, err := config.Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("error - malformed .env file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT = = ="), 0o600))

		_, err := config.Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading config file")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			LogLevel:          "info",
			QueueBackend:      config.BackendMemory,
			LedgerBackend:     config.BackendMemory,
			MetricsBackend:    config.BackendMemory,
			IntegrationSource: config.SourceFile,
			IntegrationsFile:  "integrations.yaml",
			HandlerMode:       config.HandlerLog,
			WorkerPoolSize:    10,
			RetryBase:         time.Minute,
			RetryCap:          time.Hour,
			RetryMaxAttempts:  5,
		}
	}

	t.Run("success - memory backends", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown queue backend", func(c *config.Config) { c.QueueBackend = "kafka" }, "QUEUE_BACKEND"},
		{"unknown integration source", func(c *config.Config) { c.IntegrationSource = "consul" }, "INTEGRATION_SOURCE"},
		{"file source without a path", func(c *config.Config) { c.IntegrationsFile = "" }, "INTEGRATIONS_FILE"},
		{"redis ledger without address", func(c *config.Config) { c.LedgerBackend = config.BackendRedis }, "REDIS_ADDR"},
		{"postgres integrations without url", func(c *config.Config) { c.IntegrationSource = config.SourcePostgres }, "DATABASE_URL"},
		{"forward mode without url", func(c *config.Config) { c.HandlerMode = config.HandlerForward }, "FORWARD_URL"},
		{"unknown handler mode", func(c *config.Config) { c.HandlerMode = "email" }, "HANDLER_MODE"},
		{"empty worker pool", func(c *config.Config) { c.WorkerPoolSize = 0 }, "WORKER_POOL_SIZE"},
		{"zero attempts", func(c *config.Config) { c.RetryMaxAttempts = 0 }, "RETRY_MAX_ATTEMPTS"},
		{"cap below base", func(c *config.Config) { c.RetryCap = time.Second }, "RETRY_CAP"},
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run("error - "+tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
