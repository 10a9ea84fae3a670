// Package audit persists the outcome of every processed request.
//
// # Overview
//
// The processor writes exactly one Record per call, admitted or rejected,
// through the Sink interface. Sinks are best-effort: a sink failure is
// logged and counted but never changes what the client sees.
//
// # Sinks
//
// MemorySink keeps a bounded ring for tests and development. SlogSink
// emits one structured log line per record. NATSSink publishes records to
// a JetStream subject for off-box consumers. MultiSink fans out to several
// sinks, attempting all of them before reporting the first error. The
// libSQL store (see the store package) also satisfies Sink for durable
// local records.
//
// # The pump
//
// Pump is the Sink the processor actually holds. Write enqueues onto a
// bounded worker pool and returns immediately; a full queue drops the
// record, bumps a counter, and warns at a rate-limited cadence. Workers
// deliver to the wrapped sink with a small capped retry on transient
// failures. Stop closes the queue and drains what was accepted.
package audit
