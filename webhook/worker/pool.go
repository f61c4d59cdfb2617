package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/marcelsud/commerce-webhooks/internal/schedule"
	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/marcelsud/commerce-webhooks/webhook/retry"
)

const (
	DefaultPoolSize       = 10
	DefaultPollInterval   = time.Second
	DefaultHandlerTimeout = 30 * time.Second

	// errorBuffer is how many infrastructure errors wait for a reader before new ones are dropped
	errorBuffer = 64
)

// ErrTickInProgress is returned when a tick starts while the previous one is still running
var ErrTickInProgress = errors.New("worker tick already in progress")

// Queue is the part of webhook.Queue the pool drives
type Queue interface {
	webhook.Claimer
	webhook.Transitioner
}

// Recorder receives pipeline metrics
type Recorder interface {
	Record(ctx context.Context, s metrics.Sample)
}

// Ledger is told when a queued event has been processed
type Ledger interface {
	MarkProcessed(ctx context.Context, integrationID, key string, statusCode int, note string)
}

// Heartbeater publishes the liveness of a pool instance
type Heartbeater interface {
	Beat(ctx context.Context, instanceID, status string, inFlight int) error
	Forget(ctx context.Context, instanceID string) error
}

// Config tunes a Pool
type Config struct {
	// PoolSize is the maximum number of items claimed and executed per tick
	PoolSize       int
	PollInterval   time.Duration
	HandlerTimeout time.Duration
	Policy         retry.Policy
	// InstanceID names this pool in heartbeats; a random id is used when empty
	InstanceID string
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = DefaultHandlerTimeout
	}
	if c.Policy.Base <= 0 && c.Policy.Cap <= 0 && c.Policy.MaxAttempts <= 0 {
		c.Policy = retry.DefaultPolicy()
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.New().String()
	}
	return c
}

// Report summarizes one tick
type Report struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	// Skipped items were taken by another worker between scan and claim
	Skipped int `json:"skipped"`
}

type outcome int

const (
	skipped outcome = iota
	completed
	retried
	failed
)

/* Pool drains the queue
 * Each tick scans up to PoolSize eligible items, claims them one by one
 * with a conditional write and executes the claimed ones concurrently.
 * Ticks never overlap.
 */
type Pool struct {
	queue      Queue
	handler    webhook.Handler
	ledger     Ledger
	recorder   Recorder
	heartbeats Heartbeater
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger

	ticking  atomic.Bool
	inFlight atomic.Int64
	errs     chan error
}

// Option configures a Pool
type Option func(*Pool)

// WithLedger marks idempotency entries processed on success
func WithLedger(l Ledger) Option {
	return func(p *Pool) {
		p.ledger = l
	}
}

// WithRecorder records processed, retried and failed metrics
func WithRecorder(r Recorder) Option {
	return func(p *Pool) {
		p.recorder = r
	}
}

// WithHeartbeats publishes a heartbeat every tick
func WithHeartbeats(h Heartbeater) Option {
	return func(p *Pool) {
		p.heartbeats = h
	}
}

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a worker pool
func NewPool(queue Queue, handler webhook.Handler, cfg Config, logger zerolog.Logger, opts ...Option) *Pool {
	p := &Pool{
		queue:   queue,
		handler: handler,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		errs:    make(chan error, errorBuffer),
	}
	p.logger = logger.With().Str("component", "worker").Str("instance_id", p.cfg.InstanceID).Logger()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InstanceID returns the id this pool uses in heartbeats
func (p *Pool) InstanceID() string {
	return p.cfg.InstanceID
}

// Errors returns the channel infrastructure failures are published on
func (p *Pool) Errors() <-chan error {
	return p.errs
}

// Schedule registers the pool tick on s at the poll interval
func (p *Pool) Schedule(s *schedule.Scheduler) {
	s.Every("worker-tick", p.cfg.PollInterval, func(ctx context.Context) error {
		_, err := p.Tick(ctx)
		if errors.Is(err, ErrTickInProgress) {
			return nil
		}
		return err
	})
}

// Shutdown removes the heartbeat of this instance
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.heartbeats == nil {
		return nil
	}
	if err := p.heartbeats.Forget(ctx, p.cfg.InstanceID); err != nil {
		return fmt.Errorf("removing heartbeat: %w", err)
	}
	return nil
}

/* Tick runs one polling round
 * Returns ErrTickInProgress without touching the queue when the previous
 * round has not finished
 */
func (p *Pool) Tick(ctx context.Context) (Report, error) {
	if !p.ticking.CompareAndSwap(false, true) {
		return Report{}, ErrTickInProgress
	}
	defer p.ticking.Store(false)

	items, err := p.queue.ClaimBatch(ctx, p.cfg.PoolSize, p.now().UTC())
	if err != nil {
		p.beat(ctx, "idle")
		return Report{}, fmt.Errorf("scanning queue: %w", err)
	}
	if len(items) == 0 {
		p.beat(ctx, "idle")
		return Report{}, nil
	}

	p.beat(ctx, "processing")

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	g.SetLimit(p.cfg.PoolSize)
	for _, item := range items {
		item := item
		g.Go(func() error {
			out, err := p.process(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			switch out {
			case completed:
				report.Claimed++
				report.Completed++
			case retried:
				report.Claimed++
				report.Retried++
			case failed:
				report.Claimed++
				report.Failed++
			default:
				report.Skipped++
			}
			if err != nil {
				p.publish(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.beat(ctx, "idle")
	if report.Claimed > 0 {
		p.logger.Info().
			Int("claimed", report.Claimed).
			Int("completed", report.Completed).
			Int("retried", report.Retried).
			Int("failed", report.Failed).
			Msg("tick finished")
	}
	return report, nil
}

/* process claims and executes one item
 * Everything after the claim works from the claimed copy; the scanned one may
 * be stale if another instance ran and re-armed the item in between
 */
func (p *Pool) process(ctx context.Context, scanned webhook.QueueItem) (outcome, error) {
	item, ok, err := p.queue.Claim(ctx, scanned.ID, p.now().UTC())
	if err != nil {
		return skipped, fmt.Errorf("claiming item %s: %w", scanned.ID, err)
	}
	if !ok {
		return skipped, nil
	}

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	start := p.now()
	res := Execute(ctx, p.handler, webhook.DeliveryFor(item), p.cfg.HandlerTimeout)
	elapsed := p.now().Sub(start)
	now := p.now().UTC()

	if res.Success {
		if err := p.queue.Complete(ctx, item.ID, elapsed, now); err != nil {
			return completed, fmt.Errorf("completing item %s: %w", item.ID, err)
		}
		if p.ledger != nil {
			p.ledger.MarkProcessed(ctx, item.IntegrationID, item.IdempotencyKey, http.StatusOK, idempotency.NoteProcessed)
		}
		p.record(ctx, item, metrics.Processed, elapsed, 0)
		return completed, nil
	}

	class := metrics.Classify(res.Error)
	d := p.cfg.Policy.Decide(item, res.Error, now)
	if d.Terminal {
		if err := p.queue.Fail(ctx, item.ID, d.Attempts, d.Entry); err != nil {
			return failed, fmt.Errorf("failing item %s: %w", item.ID, err)
		}
		p.logger.Error().
			Str("item_id", item.ID).
			Str("integration_id", item.IntegrationID).
			Str("topic", item.Topic.String()).
			Int("attempts", d.Attempts).
			Str("error", res.Error).
			Msg("item failed permanently")
		p.record(ctx, item, metrics.Failed, 0, class)
		return failed, nil
	}

	if err := p.queue.Retry(ctx, item.ID, d.Attempts, d.NextAttemptAt, d.Entry); err != nil {
		return retried, fmt.Errorf("re-arming item %s: %w", item.ID, err)
	}
	p.logger.Warn().
		Str("item_id", item.ID).
		Str("integration_id", item.IntegrationID).
		Str("topic", item.Topic.String()).
		Int("attempts", d.Attempts).
		Dur("delay", d.Delay).
		Str("error", res.Error).
		Msg("item scheduled for retry")
	p.record(ctx, item, metrics.Retried, 0, class)
	return retried, nil
}

func (p *Pool) record(ctx context.Context, item webhook.QueueItem, kind metrics.Kind, elapsed time.Duration, class metrics.ErrorClass) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(ctx, metrics.Sample{
		IntegrationID:  item.IntegrationID,
		TenantID:       item.TenantID,
		Kind:           kind,
		ProcessingTime: elapsed,
		ErrorClass:     class,
	})
}

func (p *Pool) beat(ctx context.Context, status string) {
	if p.heartbeats == nil {
		return
	}
	if err := p.heartbeats.Beat(ctx, p.cfg.InstanceID, status, int(p.inFlight.Load())); err != nil {
		p.logger.Warn().Err(err).Msg("writing heartbeat")
	}
}

func (p *Pool) publish(err error) {
	select {
	case p.errs <- err:
	default:
		p.logger.Error().Err(err).Msg("worker error dropped, nobody is reading")
	}
}
