package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
)

type ledgerKey struct {
	integrationID string
	key           string
}

// LedgerStore is an in-process idempotency.Store
type LedgerStore struct {
	mu      sync.Mutex
	entries map[ledgerKey]idempotency.Entry
	err     error
}

// NewLedgerStore creates an empty store
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{entries: make(map[ledgerKey]idempotency.Entry)}
}

// SetError makes every operation fail with err until called again with nil
func (s *LedgerStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Lookup returns the live entry for key
func (s *LedgerStore) Lookup(ctx context.Context, integrationID, key string, now time.Time) (idempotency.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return idempotency.Entry{}, s.err
	}
	e, ok := s.entries[ledgerKey{integrationID, key}]
	if !ok || e.Expired(now) {
		return idempotency.Entry{}, idempotency.ErrNotFound
	}
	return e, nil
}

// Save upserts an entry, keeping the creation and expiry times of a live one
func (s *LedgerStore) Save(ctx context.Context, e idempotency.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	k := ledgerKey{e.IntegrationID, e.Key}
	if existing, ok := s.entries[k]; ok && !existing.Expired(e.CreatedAt) {
		e.CreatedAt = existing.CreatedAt
		e.ExpiresAt = existing.ExpiresAt
	}
	s.entries[k] = e
	return nil
}

// MarkProcessed flags a live entry as processed
func (s *LedgerStore) MarkProcessed(ctx context.Context, integrationID, key string, statusCode int, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	k := ledgerKey{integrationID, key}
	e, ok := s.entries[k]
	if !ok || e.Expired(at) {
		return idempotency.ErrNotFound
	}
	e.Processed = true
	e.ProcessedAt = &at
	e.StatusCode = statusCode
	e.Note = note
	s.entries[k] = e
	return nil
}

// DeleteExpired removes entries past their expiry
func (s *LedgerStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// Entry returns the stored entry regardless of expiry
func (s *LedgerStore) Entry(integrationID, key string) (idempotency.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ledgerKey{integrationID, key}]
	return e, ok
}
