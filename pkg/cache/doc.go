// Package cache provides a thread-safe TTL cache with built-in statistics
// tracking and optional Prometheus metrics integration.
//
// # Overview
//
// Entries expire after a time-to-live period. Expired entries are dropped
// lazily on Get and swept periodically by a background cleanup goroutine.
// The cache is generic over its value type and safe for concurrent use.
//
// # Quick Start
//
//	cache, err := cache.NewTTL[*KeyRecord](ctx, 30*time.Second, 10*time.Second)
//	if err != nil {
//		return err
//	}
//	defer cache.Close()
//
//	cache.Set("key", record)
//	record, ok := cache.Get("key")
//
// With metrics and an eviction callback:
//
//	cache, err := cache.NewTTL[*KeyRecord](ctx, ttl, cleanupInterval,
//		cache.WithMetrics[*KeyRecord](registry, "auth_keys"),
//		cache.WithEvictionCallback[*KeyRecord](func(key string, _ *KeyRecord) {
//			logger.Debug("key expired", "key", key)
//		}),
//	)
//
// # Observability
//
// The cache implements a dual-tracking pattern:
//
// Statistics (Always On):
//   - Tracks hits, misses, sets, deletes and evictions using atomic counters
//   - Zero configuration required
//   - Access via cache.Stats()
//
// Prometheus Metrics (Optional):
//   - Enabled via WithMetrics option
//   - Exposes gateway_cache_* counters and gauges labeled by component
//   - Unregistered again when the cache closes
//
// # Lifecycle
//
// NewTTL starts the cleanup goroutine with the caller's context. The
// goroutine stops when the context is cancelled or Close is called.
// Close waits for the goroutine to exit and is safe to call more than once.
//
// Re-setting an existing key refreshes its expiry clock. Get never extends
// an entry's lifetime.
package cache
