package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), quickConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("backend down")
	attempts := 0
	err := Do(context.Background(), quickConfig(3), func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), quickConfig(5), func() error {
		attempts++
		return NonRetryable(sentinel)
	})

	require.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancelsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func() error {
		attempts++
		return errors.New("still failing")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 5)
}

func TestDo_BackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   10.0,
	}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error {
		return errors.New("nope")
	})
	elapsed := time.Since(start)

	// Pauses: 10ms, then capped at 25ms twice.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestDo_ZeroConfigRunsOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RejectsInvertedDelays(t *testing.T) {
	err := Do(context.Background(), Config{
		InitialDelay: time.Second,
		MaxDelay:     time.Millisecond,
	}, func() error { return nil })

	assert.Error(t, err)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), quickConfig(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("not ready")
		}
		return "ready", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Equal(t, 2, attempts)
}

func TestNonRetryable_NilStaysNil(t *testing.T) {
	assert.NoError(t, NonRetryable(nil))
	assert.False(t, IsNonRetryable(nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.True(t, cfg.AddJitter)
}
