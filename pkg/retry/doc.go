// Package retry runs operations under an exponential-backoff policy
// with optional jitter.
//
// The gateway uses it in three places: the store's startup ping, the
// audit pump's sink delivery, and the NATS key-value compare-and-swap
// loop. Each passes its own Config; DefaultConfig covers the common
// three-attempt case.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return sink.Write(ctx, record)
//	})
//
// Errors the caller knows are permanent are wrapped with NonRetryable,
// which makes Do return at once:
//
//	return retry.NonRetryable(fmt.Errorf("decode stored value: %w", err))
//
// Do stops early when its context ends, both between attempts and
// mid-backoff. The package carries no state; Config values are plain
// data and safe to share.
package retry
