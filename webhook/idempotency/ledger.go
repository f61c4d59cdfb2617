package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is how long a record suppresses duplicates
	DefaultTTL = 24 * time.Hour
	// MaxNoteLen bounds the stored response summary
	MaxNoteLen = 500

	// NoteQueued is the summary of an accepted event waiting in the queue
	NoteQueued = "queued"
	// NoteProcessed is the summary of an event its handler applied
	NoteProcessed = "processed"
)

// ErrNotFound is returned by stores when no live record exists for a key
var ErrNotFound = errors.New("idempotency record not found")

/* Entry is one accepted event fingerprint
 * Keyed by (IntegrationID, Key); at most one live entry exists per key
 */
type Entry struct {
	IntegrationID string
	Key           string
	SourceEventID string
	Topic         webhook.Topic
	Processed     bool
	ProcessedAt   *time.Time
	StatusCode    int
	Note          string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the entry no longer suppresses duplicates at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

/* Store persists ledger entries
 * Save is an upsert: a live entry keeps its creation and expiry times,
 * an expired one is replaced
 */
type Store interface {
	Lookup(ctx context.Context, integrationID, key string, now time.Time) (Entry, error)
	Save(ctx context.Context, e Entry) error
	MarkProcessed(ctx context.Context, integrationID, key string, statusCode int, note string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CheckResult is the outcome of a duplicate lookup
type CheckResult struct {
	IsDuplicate       bool
	OriginalTimestamp time.Time
}

// Ledger is the duplicate-suppression policy on top of a Store
type Ledger struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a new ledger
func NewLedger(store Store, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger.With().Str("component", "idempotency").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

/* Check looks up a live record for key
 * A storage failure fails open: the event is treated as new
 */
func (l *Ledger) Check(ctx context.Context, integrationID, key string) CheckResult {
	e, err := l.store.Lookup(ctx, integrationID, key, l.now().UTC())
	if errors.Is(err, ErrNotFound) {
		return CheckResult{}
	}
	if err != nil {
		l.logger.Warn().Err(err).
			Str("integration_id", integrationID).
			Str("idempotency_key", key).
			Msg("idempotency check failed, continuing as not duplicate")
		return CheckResult{}
	}
	return CheckResult{IsDuplicate: true, OriginalTimestamp: e.CreatedAt}
}

// Record stores an entry expiring after the ledger TTL. Failures are logged and swallowed.
func (l *Ledger) Record(ctx context.Context, e Entry) {
	now := l.now().UTC()
	e.CreatedAt = now
	e.ExpiresAt = now.Add(l.ttl)
	e.Note = truncate(e.Note)
	if e.Processed && e.ProcessedAt == nil {
		e.ProcessedAt = &now
	}
	if err := l.store.Save(ctx, e); err != nil {
		l.logger.Error().Err(err).
			Str("integration_id", e.IntegrationID).
			Str("idempotency_key", e.Key).
			Msg("recording idempotency entry")
	}
}

// MarkProcessed flags the entry of a finished event. Failures are logged and swallowed.
func (l *Ledger) MarkProcessed(ctx context.Context, integrationID, key string, statusCode int, note string) {
	err := l.store.MarkProcessed(ctx, integrationID, key, statusCode, truncate(note), l.now().UTC())
	if err != nil && !errors.Is(err, ErrNotFound) {
		l.logger.Error().Err(err).
			Str("integration_id", integrationID).
			Str("idempotency_key", key).
			Msg("marking idempotency entry processed")
	}
}

// CleanupExpired deletes records past their expiry and returns how many were removed
func (l *Ledger) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := l.store.DeleteExpired(ctx, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired idempotency records: %w", err)
	}
	if n > 0 {
		l.logger.Info().Int64("deleted", n).Msg("expired idempotency records removed")
	}
	return n, nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxNoteLen {
		return s
	}
	return string(r[:MaxNoteLen])
}
