package auth

import (
	"context"
	"time"

	"github.com/sania-talib/api-gateway-project/pkg/cache"
)

// DefaultCacheTTL bounds how stale a cached verdict may grow when nothing
// invalidates it sooner.
const DefaultCacheTTL = 30 * time.Second

// CachedStore memoizes IsActive verdicts from an inner store. Both
// positive and negative verdicts are cached; store failures are not, so a
// recovering store is consulted again on the very next lookup.
type CachedStore struct {
	store KeyStore
	cache cache.Cache[bool]
}

// NewCachedStore wraps store with a TTL verdict cache. Non-positive ttl
// falls back to DefaultCacheTTL. The cleanup goroutine runs until ctx is
// cancelled or Close is called.
func NewCachedStore(ctx context.Context, store KeyStore, ttl time.Duration, opts ...cache.Option[bool]) (*CachedStore, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := cache.NewTTL[bool](ctx, ttl, ttl, opts...)
	if err != nil {
		return nil, err
	}
	return &CachedStore{store: store, cache: c}, nil
}

// IsActive serves from cache when possible, otherwise asks the inner
// store and caches its verdict.
func (s *CachedStore) IsActive(ctx context.Context, key string) (bool, error) {
	if active, ok := s.cache.Get(key); ok {
		return active, nil
	}

	active, err := s.store.IsActive(ctx, key)
	if err != nil {
		return false, err
	}

	// A rejected cache write never fails a lookup the store answered.
	_, _ = s.cache.Set(key, active)
	return active, nil
}

// Invalidate drops the cached verdict for a key so the next lookup hits
// the store. Used by the KV bucket watcher on key changes.
func (s *CachedStore) Invalidate(key string) {
	_, _ = s.cache.Delete(key)
}

// Stats exposes the underlying cache counters.
func (s *CachedStore) Stats() *cache.Statistics {
	return s.cache.Stats()
}

// Close stops the cache's cleanup goroutine.
func (s *CachedStore) Close() error {
	return s.cache.Close()
}
