package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks cache effectiveness. Counters are atomics and the
// size fields share one mutex, so all methods are safe for concurrent
// use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	mu          sync.RWMutex
	currentSize int64
	maxSize     int64

	startTime time.Time
}

// NewStatistics returns a tracker with its uptime clock started.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a lookup that found a live entry.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a lookup that found nothing, or only an expired entry.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a write.
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records an explicit removal.
func (s *Statistics) Delete() { s.deletes.Add(1) }

// Eviction records an entry removed because it expired.
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// UpdateSize records the entry count after a mutation and keeps the
// high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the number of lookups served from the cache.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of lookups that fell through.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the number of writes.
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Deletes returns the number of explicit removals.
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// Evictions returns the number of entries dropped on expiry.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// CurrentSize returns the entry count as of the last mutation.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest entry count the cache has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns hits over total lookups, or 0 before any lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the cache has been live. The start time is
// fixed at construction, so no lock is needed.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}
