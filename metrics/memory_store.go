package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

type bucketKey struct {
	integrationID string
	start         int64
}

// MemoryStore keeps buckets in process memory
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[bucketKey]*Bucket
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[bucketKey]*Bucket)}
}

// Increment adds a sample to its bucket
func (m *MemoryStore) Increment(ctx context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := BucketStart(s.At)
	k := bucketKey{s.IntegrationID, start.Unix()}
	b, ok := m.buckets[k]
	if !ok {
		b = &Bucket{IntegrationID: s.IntegrationID, TenantID: s.TenantID, Start: start}
		m.buckets[k] = b
	}
	b.Apply(s)
	return nil
}

// Range returns buckets ordered by start
func (m *MemoryStore) Range(ctx context.Context, integrationID string, from, to time.Time) ([]Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Bucket
	for k, b := range m.buckets {
		if k.integrationID != integrationID || b.Start.Before(from) || b.Start.After(to) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
