package breaker

import (
	"sync"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name          string
		threshold     int
		resetTimeout  time.Duration
		wantThreshold int
		wantReset     time.Duration
	}{
		{"explicit values", 5, 30 * time.Second, 5, 30 * time.Second},
		{"zero threshold", 0, 30 * time.Second, DefaultFailureThreshold, 30 * time.Second},
		{"negative threshold", -1, 30 * time.Second, DefaultFailureThreshold, 30 * time.Second},
		{"zero reset timeout", 5, 0, 5, DefaultResetTimeout},
		{"all defaults", 0, 0, DefaultFailureThreshold, DefaultResetTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.threshold, tt.resetTimeout)
			if b.failureThreshold != tt.wantThreshold {
				t.Errorf("failureThreshold = %d, want %d", b.failureThreshold, tt.wantThreshold)
			}
			if b.resetTimeout != tt.wantReset {
				t.Errorf("resetTimeout = %v, want %v", b.resetTimeout, tt.wantReset)
			}
			if b.State() != StateClosed {
				t.Errorf("initial state = %v, want %v", b.State(), StateClosed)
			}
			if b.FailureCount() != 0 {
				t.Errorf("initial failureCount = %d, want 0", b.FailureCount())
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestOpensOnThresholdFailure(t *testing.T) {
	now := time.Now()
	b := New(3, 10*time.Second)

	b.RecordFailure(now)
	b.RecordFailure(now.Add(time.Second))
	if b.State() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", b.State())
	}
	if b.IsOpen(now.Add(time.Second)) {
		t.Fatal("IsOpen = true below threshold")
	}

	b.RecordFailure(now.Add(2 * time.Second))
	if b.State() != StateOpen {
		t.Fatalf("state after 3rd failure = %v, want open", b.State())
	}
	if !b.IsOpen(now.Add(3 * time.Second)) {
		t.Fatal("IsOpen = false right after opening")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	now := time.Now()
	b := New(3, 10*time.Second)

	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordSuccess()

	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failureCount after success = %d, want 0", got)
	}

	// Two more failures start from zero, so the breaker stays closed.
	b.RecordFailure(now)
	b.RecordFailure(now)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}

	b.RecordFailure(now)
	if b.State() != StateOpen {
		t.Fatalf("state after threshold = %v, want open", b.State())
	}
}

func TestLazyHalfOpenTransition(t *testing.T) {
	start := time.Now()
	b := New(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		b.RecordFailure(start)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Exactly at the timeout boundary the breaker is still open; the
	// transition requires strictly more than resetTimeout to elapse.
	if !b.IsOpen(start.Add(10 * time.Second)) {
		t.Fatal("IsOpen = false exactly at reset timeout")
	}
	if b.State() != StateOpen {
		t.Fatalf("state at boundary = %v, want open", b.State())
	}

	// Past the timeout the next query performs the transition and admits
	// the caller as the trial request.
	if b.IsOpen(start.Add(10*time.Second + time.Millisecond)) {
		t.Fatal("IsOpen = true past reset timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state past timeout = %v, want half_open", b.State())
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	start := time.Now()
	b := New(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		b.RecordFailure(start)
	}
	b.IsOpen(start.Add(11 * time.Second)) // trigger half-open

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state after trial success = %v, want closed", b.State())
	}
	if b.FailureCount() != 0 {
		t.Fatalf("failureCount = %d, want 0", b.FailureCount())
	}
	if !b.lastFailureTime.IsZero() {
		t.Fatal("lastFailureTime not cleared on success")
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	start := time.Now()
	b := New(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		b.RecordFailure(start)
	}
	b.IsOpen(start.Add(11 * time.Second)) // trigger half-open

	failAt := start.Add(12 * time.Second)
	b.RecordFailure(failAt)
	if b.State() != StateOpen {
		t.Fatalf("state after trial failure = %v, want open", b.State())
	}

	// The reset clock restarts from the trial failure.
	if !b.IsOpen(failAt.Add(10 * time.Second)) {
		t.Fatal("IsOpen = false before new reset timeout elapsed")
	}
	if b.IsOpen(failAt.Add(10*time.Second + time.Millisecond)) {
		t.Fatal("IsOpen = true after new reset timeout elapsed")
	}
}

func TestHalfOpenFailureReopensBelowThreshold(t *testing.T) {
	// A failing trial reopens even when the count is under the threshold.
	b := New(3, 10*time.Second)
	b.state = StateHalfOpen
	b.failureCount = 0

	b.RecordFailure(time.Now())
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestFailureWhileOpenExtendsResetClock(t *testing.T) {
	// An in-flight dispatch can complete with a failure after the breaker
	// already opened; that outcome refreshes lastFailureTime.
	start := time.Now()
	b := New(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		b.RecordFailure(start)
	}

	late := start.Add(5 * time.Second)
	b.RecordFailure(late)

	if b.IsOpen(start.Add(10*time.Second + time.Millisecond)) == false {
		t.Fatal("IsOpen = false; reset clock should run from the late failure")
	}
	if b.IsOpen(late.Add(10*time.Second+time.Millisecond)) == true {
		t.Fatal("IsOpen = true after timeout from the late failure")
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := New(5, time.Second)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch (n + j) % 3 {
				case 0:
					b.RecordFailure(now)
				case 1:
					b.RecordSuccess()
				default:
					b.IsOpen(now)
					b.State()
					b.FailureCount()
				}
			}
		}(i)
	}
	wg.Wait()

	// State must land on a valid value regardless of interleaving.
	switch b.State() {
	case StateClosed, StateOpen, StateHalfOpen:
	default:
		t.Fatalf("invalid state %v after concurrent access", b.State())
	}
}
