package service

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// DefaultFailureRate is the simulated failure probability applied when
// no rate is configured.
const DefaultFailureRate = 0.1

// Mock is an in-process backend that simulates latency and intermittent
// failures. Safe for concurrent use.
type Mock struct {
	name        string
	minLatency  time.Duration
	latencySpan time.Duration
	failureRate float64
	success     func() map[string]any
	failure     func() map[string]any

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(time.Duration)

	logger *slog.Logger
}

// MockOption configures a mock backend.
type MockOption func(*Mock)

// WithFailureRate sets the simulated failure probability, range [0, 1].
func WithFailureRate(rate float64) MockOption {
	return func(m *Mock) {
		m.failureRate = rate
	}
}

// WithRand injects a seeded random source for deterministic tests. The
// mock draws twice per call: latency first, then the failure roll.
func WithRand(rng *rand.Rand) MockOption {
	return func(m *Mock) {
		m.rng = rng
	}
}

// WithSleep replaces the latency sleep, letting tests skip real delays.
// nil disables the simulated latency entirely.
func WithSleep(sleep func(time.Duration)) MockOption {
	return func(m *Mock) {
		m.sleep = sleep
	}
}

// WithLogger sets the logger for call tracing.
func WithLogger(logger *slog.Logger) MockOption {
	return func(m *Mock) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMockUsers simulates the user service: 50-150ms latency, failures
// at the configured rate.
func NewMockUsers(opts ...MockOption) *Mock {
	m := &Mock{
		name:        "users",
		minLatency:  50 * time.Millisecond,
		latencySpan: 100 * time.Millisecond,
		failureRate: DefaultFailureRate,
		success: func() map[string]any {
			return map[string]any{
				"data": []any{
					map[string]any{"id": 1, "name": "Alice"},
					map[string]any{"id": 2, "name": "Bob"},
				},
				"status":  "success",
				"message": "Users fetched successfully",
			}
		},
		failure: func() map[string]any {
			return map[string]any{
				"message": "Simulated internal server error from user service",
				"status":  "error",
			}
		},
		sleep:  time.Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMockProducts simulates the product service: 80-230ms latency,
// failures at the configured rate.
func NewMockProducts(opts ...MockOption) *Mock {
	m := &Mock{
		name:        "products",
		minLatency:  80 * time.Millisecond,
		latencySpan: 150 * time.Millisecond,
		failureRate: DefaultFailureRate,
		success: func() map[string]any {
			return map[string]any{
				"data": []any{
					map[string]any{"id": 101, "name": "Laptop"},
					map[string]any{"id": 102, "name": "Mouse"},
				},
				"status":  "success",
				"message": "Products fetched successfully",
			}
		},
		failure: func() map[string]any {
			return map[string]any{
				"message": "Product Service Internal error",
				"status":  "error",
			}
		},
		sleep:  time.Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invoke simulates one backend call. Failures surface as a 500 payload
// with a nil error so the caller treats them as backend responses, not
// dispatch faults.
func (m *Mock) Invoke(_ context.Context, headers map[string]string, body any) (any, int, error) {
	m.logger.Debug("mock service called",
		"service", m.name,
		"header_count", len(headers),
		"has_body", body != nil)

	latency := m.minLatency + time.Duration(m.random()*float64(m.latencySpan))
	if m.sleep != nil {
		m.sleep(latency)
	}

	if m.random() < m.failureRate {
		return m.failure(), http.StatusInternalServerError, nil
	}
	return m.success(), http.StatusOK, nil
}

// random draws from the injected source under the mutex, or from the
// shared global source when none was injected.
func (m *Mock) random() float64 {
	if m.rng == nil {
		return rand.Float64()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}
