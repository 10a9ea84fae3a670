package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config is a backoff policy. The zero value is usable: normalize fills
// in the defaults below.
type Config struct {
	// MaxAttempts is the total number of calls, first attempt included.
	// Values below 1 mean a single attempt with no retries.
	MaxAttempts int
	// InitialDelay is the pause before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the grown delay between attempts.
	MaxDelay time.Duration
	// Multiplier grows the delay after each failed attempt.
	Multiplier float64
	// AddJitter spreads concurrent retriers by extending each pause by
	// up to a quarter of the base delay.
	AddJitter bool
}

// DefaultConfig suits one-off operations against a usually-healthy
// dependency: three attempts spanning roughly a third of a second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (cfg Config) normalize() (Config, error) {
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return cfg, errors.New("retry: negative delay or multiplier")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, errors.New("retry: MaxDelay below InitialDelay")
	}
	return cfg, nil
}

// pause sleeps for the given base delay, jittered per the config, or
// returns early when ctx ends.
func (cfg Config) pause(ctx context.Context, base time.Duration) error {
	d := base
	if cfg.AddJitter {
		d += rand.N(base/4 + 1)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// next grows the delay for the following pause, capped at MaxDelay.
func (cfg Config) next(delay time.Duration) time.Duration {
	grown := float64(delay) * cfg.Multiplier
	if grown >= float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(grown)
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx ends. The returned error wraps fn's last
// error, so errors.Is/As see through the retry layer.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("retry: gave up after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}
		if err := cfg.pause(ctx, delay); err != nil {
			return fmt.Errorf("retry: cancelled after %d attempts: %w", attempt, errors.Join(err, lastErr))
		}
		delay = cfg.next(delay)
	}
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var v T
	err := Do(ctx, cfg, func() error {
		var ferr error
		v, ferr = fn()
		return ferr
	})
	return v, err
}

// NonRetryable marks err as permanent: Do returns it without further
// attempts. A nil err stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err (or anything it wraps) was marked
// with NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *nonRetryableError
	return errors.As(err, &nre)
}

type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return "non-retryable: " + e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }
