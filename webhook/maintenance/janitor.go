package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelsud/commerce-webhooks/internal/schedule"
	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook"
)

const (
	DefaultCompletedRetention = 7 * 24 * time.Hour
	DefaultStaleClaimTimeout  = 10 * time.Minute
	DefaultInterval           = time.Hour
)

// ExpiryCleaner removes expired idempotency records
type ExpiryCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// QueueSweeper removes finished items and recovers stuck claims
type QueueSweeper interface {
	CleanupCompleted(ctx context.Context, before time.Time) (int64, error)
	RecoverStale(ctx context.Context, claimedBefore time.Time, now time.Time) ([]webhook.Recovered, error)
}

// Recorder receives a sample per recovered claim
type Recorder interface {
	Record(ctx context.Context, s metrics.Sample)
}

// Config tunes the janitor horizons
type Config struct {
	CompletedRetention time.Duration
	StaleClaimTimeout  time.Duration
	Interval           time.Duration
}

// Report counts what one run removed or recovered
type Report struct {
	ExpiredRecords int64 `json:"expired_idempotency_records"`
	CompletedItems int64 `json:"completed_items_removed"`
	RecoveredItems int64 `json:"stale_items_recovered"`
	// FailedItems is the part of RecoveredItems that ran out of attempts
	FailedItems int64 `json:"stale_items_failed"`
}

/* Janitor is the recurring cleanup of the shared stores
 * Each step runs even when a previous one failed
 */
type Janitor struct {
	ledger   ExpiryCleaner
	queue    QueueSweeper
	recorder Recorder
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Janitor
type Option func(*Janitor)

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// WithRecorder reports recovered claims as retried or failed samples
func WithRecorder(r Recorder) Option {
	return func(j *Janitor) {
		j.recorder = r
	}
}

// NewJanitor creates a janitor
func NewJanitor(ledger ExpiryCleaner, queue QueueSweeper, cfg Config, logger zerolog.Logger, opts ...Option) *Janitor {
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = DefaultCompletedRetention
	}
	if cfg.StaleClaimTimeout <= 0 {
		cfg.StaleClaimTimeout = DefaultStaleClaimTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	j := &Janitor{
		ledger: ledger,
		queue:  queue,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "janitor").Logger(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one cleanup pass
func (j *Janitor) Run(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
		err    error
	)
	now := j.now().UTC()

	report.ExpiredRecords, err = j.ledger.CleanupExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	report.CompletedItems, err = j.queue.CleanupCompleted(ctx, now.Add(-j.cfg.CompletedRetention))
	if err != nil {
		errs = append(errs, fmt.Errorf("cleaning completed items: %w", err))
	}

	recovered, err := j.queue.RecoverStale(ctx, now.Add(-j.cfg.StaleClaimTimeout), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("recovering stale claims: %w", err))
	}
	for _, r := range recovered {
		report.RecoveredItems++
		kind := metrics.Retried
		if r.Terminal {
			report.FailedItems++
			kind = metrics.Failed
			j.logger.Error().
				Str("item_id", r.ID).
				Str("integration_id", r.IntegrationID).
				Int("attempts", r.Attempts).
				Msg("stale claim exhausted its attempts")
		}
		j.record(ctx, r, kind, now)
	}

	if report.RecoveredItems > 0 {
		j.logger.Warn().
			Int64("recovered", report.RecoveredItems).
			Int64("failed", report.FailedItems).
			Msg("stale claims recovered")
	}
	j.logger.Info().
		Int64("expired_records", report.ExpiredRecords).
		Int64("completed_items", report.CompletedItems).
		Int64("recovered_items", report.RecoveredItems).
		Msg("cleanup finished")

	return report, errors.Join(errs...)
}

func (j *Janitor) record(ctx context.Context, r webhook.Recovered, kind metrics.Kind, now time.Time) {
	if j.recorder == nil {
		return
	}
	j.recorder.Record(ctx, metrics.Sample{
		IntegrationID: r.IntegrationID,
		TenantID:      r.TenantID,
		Kind:          kind,
		ErrorClass:    metrics.Classify(webhook.StaleClaimError),
		At:            now,
	})
}

// Schedule registers the janitor on s at the configured interval
func (j *Janitor) Schedule(s *schedule.Scheduler) {
	s.Every("janitor", j.cfg.Interval, func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	})
}
