package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding-log limiter. A read-write mutex guards
// only the client→window map; each window carries its own mutex, so a hot
// client never blocks decisions for the rest.
type Memory struct {
	limit  int
	window time.Duration

	idleTTL    time.Duration
	sweepEvery time.Duration

	mu      sync.RWMutex
	windows map[string]*clientWindow
}

type clientWindow struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithIdleTTL sets how long an inactive client's window survives before a
// sweep drops it.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(m *Memory) { m.idleTTL = d }
}

// WithSweepEvery sets the janitor interval.
func WithSweepEvery(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepEvery = d }
}

// NewMemory builds a memory limiter admitting up to limit requests per
// sliding window. Non-positive arguments fall back to the defaults.
func NewMemory(limit int, window time.Duration, opts ...MemoryOption) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Memory{
		limit:      limit,
		window:     window,
		idleTTL:    15 * time.Minute,
		sweepEvery: 2 * time.Minute,
		windows:    make(map[string]*clientWindow),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Admit prunes the client's window relative to now, denies without
// recording when the live count has reached the limit, and otherwise
// records now and admits. The error is always nil.
func (m *Memory) Admit(_ context.Context, clientKey string, now time.Time) (bool, error) {
	w := m.windowFor(clientKey)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now

	// A stamp exactly window old has left the window.
	cutoff := now.Add(-m.window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= m.limit {
		return false, nil
	}
	w.stamps = append(w.stamps, now)
	return true, nil
}

// Count reports the live (unexpired) admissions for a client at now.
// It does not record anything.
func (m *Memory) Count(clientKey string, now time.Time) int {
	m.mu.RLock()
	w, ok := m.windows[clientKey]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-m.window)
	n := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func (m *Memory) windowFor(key string) *clientWindow {
	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[key]; ok {
		return w
	}
	w = &clientWindow{}
	m.windows[key] = w
	return w
}

// Sweep drops windows whose last activity is older than the idle TTL
// relative to now and reports how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps idle windows on a ticker until ctx is cancelled.
func (m *Memory) StartJanitor(ctx context.Context) {
	if m.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(m.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				m.Sweep(now)
			}
		}
	}()
}
