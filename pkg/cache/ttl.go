package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
)

// NewTTL creates a cache whose entries expire ttl after each write.
// Expired entries are dropped lazily on Get and swept every
// cleanupInterval by a background goroutine tied to ctx.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	opts := applyOptions(options...)
	return newTTLCache[V](ctx, ttl, cleanupInterval, opts)
}

type ttlEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

type ttlCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	sweep   time.Duration
	items   map[string]*ttlEntry[V]
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]

	closeOnce sync.Once
	shutdown  chan struct{}
	done      chan struct{}
}

func newTTLCache[V any](
	ctx context.Context, ttl, cleanupInterval time.Duration, opts *cacheOptions[V],
) (*ttlCache[V], error) {
	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
	}

	c := &ttlCache[V]{
		ttl:      ttl,
		sweep:    cleanupInterval,
		items:    make(map[string]*ttlEntry[V]),
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  opts.evictCallback,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

// noteLookup tracks a hit or miss in both the statistics and, when
// enabled, the prometheus counters.
func (c *ttlCache[V]) noteLookup(hit bool) {
	if hit {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
		return
	}
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *ttlCache[V]) noteSet(size int) {
	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
}

func (c *ttlCache[V]) noteDelete(size int) {
	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(size)
	}
}

func (c *ttlCache[V]) noteEvictions(count, size int) {
	for i := 0; i < count; i++ {
		c.stats.Eviction()
	}
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		for i := 0; i < count; i++ {
			c.metrics.recordEviction()
		}
		c.metrics.updateSize(size)
	}
}

func (c *ttlCache[V]) noteResize(size int) {
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.updateSize(size)
	}
}

// Get returns the live entry for key. An expired entry is removed on
// the spot and reported as a miss.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		c.noteLookup(false)
		return zero, false
	}

	if entry.isExpired() {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// replaced the entry with a fresh one.
		if current, still := c.items[key]; still && current.isExpired() {
			delete(c.items, key)
			if c.evictFn != nil {
				defer c.evictFn(key, current.value)
			}
			c.noteEvictions(1, len(c.items))
		}
		c.mu.Unlock()

		c.noteLookup(false)
		return zero, false
	}

	c.noteLookup(true)
	return entry.value, true
}

// Set stores value under key with a fresh expiry clock. It reports
// whether a new entry was created rather than an existing one updated.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	expiresAt := time.Now().Add(c.ttl)

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &ttlEntry[V]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}
	size := len(c.items)
	c.mu.Unlock()

	c.noteSet(size)

	return !exists, nil
}

// Delete removes the entry for key and reports whether it existed.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
		if c.evictFn != nil {
			defer c.evictFn(key, entry.value)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.noteDelete(size)
	}

	return exists, nil
}

// Clear drops every entry, invoking the eviction callback for each.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	if c.evictFn != nil {
		for _, entry := range c.items {
			c.evictFn(entry.key, entry.value)
		}
	}
	c.items = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	c.noteResize(0)

	return nil
}

// Size returns the current entry count, expired or not.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the keys of all entries that have not yet expired.
func (c *ttlCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	now := time.Now()
	for key, entry := range c.items {
		if now.Before(entry.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns the always-on statistics tracker.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the cleanup goroutine and releases any registered
// prometheus collectors. Safe to call more than once.
func (c *ttlCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		return errors.WrapTransient(
			fmt.Errorf("cleanup goroutine still running after 5s"),
			"cache", "Close", "stop cleanup")
	}

	if c.metrics != nil {
		c.metrics.unregister()
	}
	return nil
}

func (c *ttlCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *ttlCache[V]) removeExpired() {
	now := time.Now()
	var expired []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if now.After(entry.expiresAt) {
			expired = append(expired, entry)
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	// Callbacks run outside the lock so they may touch the cache.
	if c.evictFn != nil {
		for _, entry := range expired {
			c.evictFn(entry.key, entry.value)
		}
	}

	c.noteEvictions(len(expired), size)
}
