package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultWindow is the rolling health window
	DefaultWindow = 24 * time.Hour

	degradedRate      = 95.0
	unhealthyRate     = 80.0
	degradedMinSample = 10
	maxAuthErrors     = 5
)

// HealthStatus is the derived state of an integration
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// Health is the aggregate view of one integration over a window
type Health struct {
	IntegrationID       string       `json:"integration_id"`
	WindowHours         float64      `json:"window_hours"`
	TotalReceived       int64        `json:"total_received"`
	TotalProcessed      int64        `json:"total_processed"`
	TotalFailed         int64        `json:"total_failed"`
	TotalRetried        int64        `json:"total_retried"`
	TotalDuplicates     int64        `json:"total_duplicates"`
	SuccessRate         float64      `json:"success_rate"`
	AvgProcessingTimeMs float64      `json:"avg_processing_time_ms"`
	PendingRetries      int64        `json:"pending_retries"`
	ErrorBreakdown      ErrorCounts  `json:"error_breakdown"`
	Status              HealthStatus `json:"status"`
	Issues              []string     `json:"issues"`
}

// PendingCounter reports queued retries of an integration
type PendingCounter interface {
	PendingRetries(ctx context.Context, integrationID string) (int64, error)
}

// Aggregator records samples and computes health
type Aggregator struct {
	store     Store
	pending   PendingCounter
	observers []Observer
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithObserver adds an observer notified of every sample
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		a.observers = append(a.observers, o)
	}
}

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator. pending may be nil.
func NewAggregator(store Store, pending PendingCounter, logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:   store,
		pending: pending,
		now:     time.Now,
		logger:  logger.With().Str("component", "metrics").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record stores a sample in the current bucket. Failures are logged and swallowed.
func (a *Aggregator) Record(ctx context.Context, s Sample) {
	if s.At.IsZero() {
		s.At = a.now()
	}
	s.At = s.At.UTC()

	for _, o := range a.observers {
		o.Observe(ctx, s)
	}

	if err := a.store.Increment(ctx, s); err != nil {
		a.logger.Warn().Err(err).
			Str("integration_id", s.IntegrationID).
			Str("kind", s.Kind.String()).
			Msg("recording metric")
	}
}

// Health aggregates the buckets of an integration over the trailing window
func (a *Aggregator) Health(ctx context.Context, integrationID string, window time.Duration) (Health, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	now := a.now().UTC()

	buckets, err := a.store.Range(ctx, integrationID, BucketStart(now.Add(-window)), now)
	if err != nil {
		return Health{}, fmt.Errorf("reading metric buckets: %w", err)
	}

	h := Health{
		IntegrationID: integrationID,
		WindowHours:   window.Hours(),
		Issues:        []string{},
	}
	var processingMs int64
	for _, b := range buckets {
		h.TotalReceived += b.Received
		h.TotalProcessed += b.Processed
		h.TotalFailed += b.Failed
		h.TotalRetried += b.Retried
		h.TotalDuplicates += b.Duplicate
		processingMs += b.ProcessingTimeMs
		h.ErrorBreakdown.Unauthorized += b.Errors.Unauthorized
		h.ErrorBreakdown.NotFound += b.Errors.NotFound
		h.ErrorBreakdown.ServerError += b.Errors.ServerError
		h.ErrorBreakdown.Timeout += b.Errors.Timeout
		h.ErrorBreakdown.Other += b.Errors.Other
	}

	h.SuccessRate = SuccessRate(h.TotalProcessed, h.TotalReceived)
	if h.TotalProcessed > 0 {
		h.AvgProcessingTimeMs = round2(float64(processingMs) / float64(h.TotalProcessed))
	}

	if a.pending != nil {
		n, err := a.pending.PendingRetries(ctx, integrationID)
		if err != nil {
			a.logger.Warn().Err(err).Str("integration_id", integrationID).Msg("counting pending retries")
		} else {
			h.PendingRetries = n
		}
	}

	h.Status, h.Issues = Evaluate(h)
	return h, nil
}

// SuccessRate is processed / received * 100, rounded to two decimals; 100 when nothing was received
func SuccessRate(processed, received int64) float64 {
	if received <= 0 {
		return 100
	}
	return round2(float64(processed) / float64(received) * 100)
}

// Evaluate derives the status of a health report and the issues behind it
func Evaluate(h Health) (HealthStatus, []string) {
	status := Healthy
	issues := []string{}

	if h.TotalReceived > degradedMinSample && h.SuccessRate < degradedRate {
		status = Degraded
		issues = append(issues, fmt.Sprintf("success rate %.2f%% below %.0f%%", h.SuccessRate, degradedRate))
	}
	if h.SuccessRate < unhealthyRate {
		status = Unhealthy
		issues = append(issues, fmt.Sprintf("success rate %.2f%% below %.0f%%", h.SuccessRate, unhealthyRate))
	}
	if h.ErrorBreakdown.Unauthorized > maxAuthErrors {
		status = Unhealthy
		issues = append(issues, fmt.Sprintf("%d authentication errors, credentials may be revoked", h.ErrorBreakdown.Unauthorized))
	}
	if h.PendingRetries > 0 {
		issues = append(issues, fmt.Sprintf("%d events waiting for retry", h.PendingRetries))
	}

	return status, issues
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
