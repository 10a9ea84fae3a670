// Package breaker implements per-service circuit breaking for downstream dispatch.
package breaker

import (
	"sync"
	"time"
)

// State identifies the breaker's position in its lifecycle.
type State int

// Breaker states
const (
	StateClosed   State = iota // normal operation, calls pass through
	StateOpen                  // rejecting fast
	StateHalfOpen              // one trial call admitted
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Defaults applied when New receives non-positive settings.
const (
	DefaultFailureThreshold = 3
	DefaultResetTimeout     = 10 * time.Second
)

// Breaker is a failure-driven state machine guarding one downstream service.
// Consecutive failures open it; an open breaker rejects until the reset
// timeout has elapsed since the last failure, then admits a single trial
// whose outcome decides between closing and reopening. One instance per
// registered service, living for the process lifetime.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	state           State
	failureCount    int
	lastFailureTime time.Time
}

// New creates a closed breaker with the given threshold and reset timeout.
func New(failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}

	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            StateClosed,
	}
}

// IsOpen reports whether calls must be rejected, performing the lazy
// open-to-half-open transition first: once the reset timeout has elapsed
// since the last failure, the breaker moves to half-open and the caller is
// admitted as the trial request (IsOpen returns false). There is no
// background timer; recovery happens on the next query.
func (b *Breaker) IsOpen(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return false
	}

	if now.Sub(b.lastFailureTime) > b.resetTimeout {
		b.state = StateHalfOpen
		return false
	}

	return true
}

// RecordSuccess closes the breaker and clears accumulated failure state.
// Any success resets the count, not just a half-open trial.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.lastFailureTime = time.Time{}
}

// RecordFailure counts one completed downstream failure at the given time.
// A failing half-open trial reopens the breaker regardless of the threshold;
// a closed breaker opens once consecutive failures reach the threshold.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = now

	if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = StateOpen
	}
}

// State returns the current state without triggering transitions.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failures recorded since the last success.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
