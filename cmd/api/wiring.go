package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marcelsud/commerce-webhooks/config"
	"github.com/marcelsud/commerce-webhooks/integration"
	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/dispatch"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/marcelsud/commerce-webhooks/webhook/memory"
	"github.com/marcelsud/commerce-webhooks/webhook/postgres"
	"github.com/marcelsud/commerce-webhooks/webhook/redis"
)

// backends holds the shared connections and the stores built on them
type backends struct {
	db    *sql.DB
	redis *goredis.Client
	// queueBackend names the connection the queue closes itself
	queueBackend string

	queue      webhook.Queue
	ledger     idempotency.Store
	metrics    metrics.Store
	source     integration.Source
	heartbeats *redis.Heartbeats
}

// openBackends connects only to what the configuration selects
func openBackends(cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.NeedsPostgres() {
		db, err := postgres.OpenWithPoolConfig(
			cfg.DatabaseURL,
			cfg.PostgresMaxOpenConns,
			cfg.PostgresMaxIdleConns,
			cfg.PostgresConnMaxLifeMinutes,
		)
		if err != nil {
			return nil, err
		}
		b.db = db
	}
	if cfg.NeedsRedis() {
		client, err := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			b.close(context.Background())
			return nil, err
		}
		b.redis = client
		b.heartbeats = redis.NewHeartbeats(client)
	}

	b.queueBackend = cfg.QueueBackend
	switch cfg.QueueBackend {
	case config.BackendPostgres:
		b.queue = postgres.NewQueue(b.db)
	case config.BackendRedis:
		b.queue = redis.NewQueue(b.redis)
	default:
		b.queue = memory.NewQueue()
	}

	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		b.ledger = postgres.NewLedgerStore(b.db)
	case config.BackendRedis:
		b.ledger = redis.NewLedgerStore(b.redis)
	default:
		b.ledger = memory.NewLedgerStore()
	}

	switch cfg.MetricsBackend {
	case config.BackendPostgres:
		b.metrics = metrics.NewPostgresStore(b.db)
	case config.BackendRedis:
		b.metrics = metrics.NewRedisStore(b.redis)
	default:
		b.metrics = metrics.NewMemoryStore()
	}

	switch cfg.IntegrationSource {
	case config.SourcePostgres:
		b.source = integration.NewPostgresSource(b.db)
	default:
		fs := integration.NewFileSource()
		if err := fs.Load(cfg.IntegrationsFile); err != nil {
			b.close(context.Background())
			return nil, err
		}
		b.source = fs
	}

	return b, nil
}

// close releases the connections; the queue closes the one it runs on
func (b *backends) close(ctx context.Context) error {
	var errs []error
	queueOwned := ""
	if b.queue != nil {
		errs = append(errs, b.queue.Close(ctx))
		queueOwned = b.queueBackend
	}
	if b.redis != nil && queueOwned != config.BackendRedis {
		errs = append(errs, b.redis.Close())
	}
	if b.db != nil && queueOwned != config.BackendPostgres {
		errs = append(errs, b.db.Close())
	}
	return errors.Join(errs...)
}

// workerCounter is nil when no heartbeat store is configured
func (b *backends) workerCounter() metrics.WorkerCounter {
	if b.heartbeats == nil {
		return nil
	}
	return b.heartbeats
}

// newHandler builds the event handler selected by HANDLER_MODE
func newHandler(cfg *config.Config, logger zerolog.Logger) (webhook.Handler, error) {
	switch cfg.HandlerMode {
	case config.HandlerForward:
		f, err := dispatch.NewForwarder(cfg.ForwardURL, cfg.ForwardSecret, &http.Client{Timeout: cfg.HandlerTimeout})
		if err != nil {
			return nil, fmt.Errorf("creating forwarder: %w", err)
		}
		return f, nil
	default:
		return dispatch.New(dispatch.NewLogHandlers(logger)), nil
	}
}
