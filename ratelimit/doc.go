// Package ratelimit enforces per-client request budgets with a sliding log.
//
// # Overview
//
// A Limiter answers one question: may this client proceed right now? The
// sliding log keeps the timestamp of every admitted request inside the
// window, prunes stale entries on each decision, and denies once the live
// count reaches the limit. Denied requests are never recorded, so a client
// hammering the gateway while throttled does not push its own window
// forward and lock itself out indefinitely.
//
// # Backends
//
// Memory (default) keeps windows in process memory with per-client locking.
// It never returns an error and costs at most limit timestamps per active
// client.
//
// Redis stores each window as a sorted set scored by admission time in
// milliseconds, for deployments running more than one gateway instance.
// Backend failures surface as transient errors; the decision policy on
// error belongs to the caller, not the limiter.
//
// # Quick Start
//
//	limiter := ratelimit.NewMemory(10, time.Minute)
//	ok, err := limiter.Admit(ctx, clientKey, time.Now())
//	if err != nil {
//		// backend fault: caller chooses fail-open or fail-closed
//	}
//	if !ok {
//		// reject with 429
//	}
package ratelimit
