// Package worker runs a generic fixed-size worker pool over a bounded
// queue. The gateway's audit pump is its main user: request handling
// submits records and the pool delivers them to sinks off the hot path.
//
// Submit never blocks. A full queue drops the item and returns
// ErrQueueFull, leaving the caller to count the drop or retry:
//
//	pool := worker.NewPool[audit.Record](2, 1024,
//	    func(ctx context.Context, rec audit.Record) error {
//	        return sink.Write(ctx, rec)
//	    },
//	    worker.WithMetricsRegistry[audit.Record](registry, "gateway_audit_pool"),
//	)
//
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(rec); errors.Is(err, worker.ErrQueueFull) {
//	    // delivery lost, caller decides whether that matters
//	}
//
// Stop closes the queue and lets workers drain what is already buffered,
// bounded by the timeout. Per-item deadlines belong in the processor
// function via its context.
//
// With a metrics registry attached the pool exports queue depth,
// utilization, submitted/processed/failed/dropped counters, and a
// processing-duration histogram under the given prefix.
package worker
