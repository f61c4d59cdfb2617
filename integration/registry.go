package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultRegistrySize bounds how many integrations are cached
	DefaultRegistrySize = 1024
	// DefaultRegistryTTL is how long a cached integration is trusted
	DefaultRegistryTTL = 5 * time.Minute
)

type cached struct {
	integration Integration
	expiresAt   time.Time
}

/* Registry caches integrations resolved from a Source
 * The cache is bounded (least recently used entries are evicted) and
 * every entry expires after the TTL. Start runs a sweep that drops
 * expired entries; Stop ends it. A Registry is safe for concurrent use.
 */
type Registry struct {
	source Source
	cache  *lru.Cache[string, cached]
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithTTL sets how long entries stay cached
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry holding at most size integrations
func NewRegistry(source Source, size int, logger zerolog.Logger, opts ...RegistryOption) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	cache, err := lru.New[string, cached](size)
	if err != nil {
		return nil, fmt.Errorf("creating registry cache: %w", err)
	}

	r := &Registry{
		source: source,
		cache:  cache,
		ttl:    DefaultRegistryTTL,
		now:    time.Now,
		logger: logger.With().Str("component", "integration_registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

/* Resolve returns the active integration of a shop domain
 * Unknown and inactive integrations both yield ErrNotFound
 */
func (r *Registry) Resolve(ctx context.Context, shopDomain string) (Integration, error) {
	domain := NormalizeDomain(shopDomain)
	if domain == "" {
		return Integration{}, fmt.Errorf("%w: empty shop domain", ErrNotFound)
	}

	if c, ok := r.cache.Get(domain); ok {
		if r.now().Before(c.expiresAt) {
			return activeOnly(c.integration, shopDomain)
		}
		r.cache.Remove(domain)
	}

	in, err := r.source.Get(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Integration{}, err
		}
		return Integration{}, fmt.Errorf("resolving integration: %w", err)
	}

	r.cache.Add(domain, cached{integration: in, expiresAt: r.now().Add(r.ttl)})
	return activeOnly(in, shopDomain)
}

func activeOnly(in Integration, shopDomain string) (Integration, error) {
	if !in.Active {
		return Integration{}, fmt.Errorf("%w: %s is inactive", ErrNotFound, shopDomain)
	}
	return in, nil
}

// Invalidate drops the cached entry of a shop domain
func (r *Registry) Invalidate(shopDomain string) {
	r.cache.Remove(NormalizeDomain(shopDomain))
}

// Len returns the number of cached entries
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Sweep removes expired entries and returns how many were dropped
func (r *Registry) Sweep() int {
	now := r.now()
	removed := 0
	for _, key := range r.cache.Keys() {
		c, ok := r.cache.Peek(key)
		if ok && !now.Before(c.expiresAt) {
			r.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Start runs the TTL sweep every interval until Stop is called or ctx ends
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	if interval <= 0 {
		interval = r.ttl
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Debug().Int("removed", n).Msg("registry sweep")
				}
			}
		}
	}(r.done)
}

// Stop ends the sweep and clears the cache
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	r.cache.Purge()
}
