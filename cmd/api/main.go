package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"

	"github.com/marcelsud/commerce-webhooks/config"
	"github.com/marcelsud/commerce-webhooks/integration"
	"github.com/marcelsud/commerce-webhooks/internal/http/chi"
	"github.com/marcelsud/commerce-webhooks/internal/schedule"
	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/marcelsud/commerce-webhooks/webhook/ingest"
	"github.com/marcelsud/commerce-webhooks/webhook/maintenance"
	"github.com/marcelsud/commerce-webhooks/webhook/retry"
	"github.com/marcelsud/commerce-webhooks/webhook/worker"
)

const TIMEOUT = 30 * time.Second

/* api wires the ingest endpoint, the worker pool and the janitor into one process
 * Imports only go downwards: the application wires the business packages,
 * which import the storage packages
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	logger := httplog.NewLogger("commerce-webhooks", httplog.Options{
		JSON:     cfg.LogJSON,
		LogLevel: cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	b, err := openBackends(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("opening backends")
		return
	}
	defer func() {
		if err := b.close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("closing backends")
		}
	}()

	handler, err := newHandler(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("creating event handler")
		return
	}

	exporter, err := metrics.NewOTelExporter(metrics.ExporterOptions{
		Queue:       b.queue,
		QueueWindow: cfg.HealthWindow,
		Workers:     b.workerCounter(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("creating metrics exporter")
		return
	}
	aggregator := metrics.NewAggregator(b.metrics, b.queue, logger, metrics.WithObserver(exporter))
	ledger := idempotency.NewLedger(b.ledger, logger, idempotency.WithTTL(cfg.IdempotencyTTL))

	registry, err := integration.NewRegistry(b.source, cfg.RegistrySize, logger, integration.WithTTL(cfg.RegistryTTL))
	if err != nil {
		logger.Error().Err(err).Msg("creating integration registry")
		return
	}
	registry.Start(ctx, cfg.RegistryTTL)
	defer registry.Stop()

	poolOpts := []worker.Option{worker.WithLedger(ledger), worker.WithRecorder(aggregator)}
	if b.heartbeats != nil {
		poolOpts = append(poolOpts, worker.WithHeartbeats(b.heartbeats))
	}
	pool := worker.NewPool(b.queue, handler, worker.Config{
		PoolSize:       cfg.WorkerPoolSize,
		PollInterval:   cfg.WorkerPollInterval,
		HandlerTimeout: cfg.HandlerTimeout,
		Policy: retry.Policy{
			Base:        cfg.RetryBase,
			Cap:         cfg.RetryCap,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
	}, logger, poolOpts...)

	janitor := maintenance.NewJanitor(ledger, b.queue, maintenance.Config{
		CompletedRetention: cfg.CompletedRetention,
		StaleClaimTimeout:  cfg.StaleClaimTimeout,
		Interval:           cfg.CleanupInterval,
	}, logger, maintenance.WithRecorder(aggregator))

	ingestService := ingest.NewService(registry, ledger, b.queue, handler, aggregator, ingest.Config{
		FreshnessWindow: cfg.FreshnessWindow,
		InlineTimeout:   cfg.InlineTimeout,
		MaxAttempts:     cfg.RetryMaxAttempts,
	}, logger)

	scheduler := schedule.New(logger)
	pool.Schedule(scheduler)
	janitor.Schedule(scheduler)
	go supervise(ctx, logger, scheduler.Errors(), pool.Errors())
	scheduler.Start()

	svc := chi.Services{
		Ingest:   ingestService,
		Worker:   pool,
		Janitor:  janitor,
		Queue:    b.queue,
		Health:   aggregator,
		Metrics:  exporter.ServeHTTP(),
		OpsToken: cfg.OpsToken,
	}
	if b.heartbeats != nil {
		svc.Workers = b.heartbeats
	}
	r := chi.Handlers(ctx, svc, logger)
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown, func(ctx context.Context) error {
		return drain(ctx, cfg.WorkerShutdownGrace, scheduler, pool, exporter)
	})
	logger.Info().
		Str("port", cfg.Port).
		Str("queue", cfg.QueueBackend).
		Str("ledger", cfg.LedgerBackend).
		Str("metrics", cfg.MetricsBackend).
		Str("instance_id", pool.InstanceID()).
		Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("serving http")
		return
	}
	err = <-errShutdown
	if err != nil {
		logger.Error().Err(err).Msg("shutting down")
		return
	}
}

// supervise logs background failures until ctx ends
func supervise(ctx context.Context, logger zerolog.Logger, jobErrs <-chan schedule.JobError, poolErrs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case jerr := <-jobErrs:
			logger.Error().Err(jerr.Err).Str("job", jerr.Job).Time("at", jerr.At).Msg("scheduled job failed")
		case err := <-poolErrs:
			logger.Error().Err(err).Msg("worker item failed")
		}
	}
}

/* drain stops new ticks at once and gives in-flight items the grace period
 * Items still processing afterwards are recovered by the janitor's stale sweep
 */
func drain(ctx context.Context, grace time.Duration, scheduler *schedule.Scheduler, pool *worker.Pool, exporter *metrics.OTelExporter) error {
	graceCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	var errs []error
	if err := scheduler.Stop(graceCtx); err != nil {
		errs = append(errs, fmt.Errorf("stopping scheduler: %w", err))
	}
	if err := pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := exporter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping exporter: %w", err))
	}
	return errors.Join(errs...)
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error, drainFn func(context.Context) error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	drainErr := drainFn(ctxTimeout)
	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- drainErr
	case context.DeadlineExceeded:
		errShutdown <- errors.Join(fmt.Errorf("Forcing closing the server"), drainErr)
	default:
		errShutdown <- errors.Join(fmt.Errorf("Forcing closing the server"), drainErr)
	}
}
