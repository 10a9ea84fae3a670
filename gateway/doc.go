// Package gateway orchestrates the request pipeline: authentication,
// rate limiting, circuit breaking, payload transformation, dispatch,
// and audit logging.
//
// # Overview
//
// Processor.Process never returns an error. Every failure category,
// from a missing API key to a panicking backend handler, is recovered
// into a well-formed Response, and every call writes exactly one audit
// record:
//
//  1. Authentication: missing or inactive key → 401. A key store
//     failure also answers 401 (fail closed) but is logged and counted
//     separately.
//  2. Rate limiting: over budget → 429, without consuming budget.
//  3. Service resolution: unknown name → 404.
//  4. Circuit check: open breaker → 503 without touching the backend.
//  5. Transform-in, then dispatch under a bounded timeout. Handler
//     errors and panics → 500; timeout or client cancellation → 504.
//  6. Breaker update: 2xx/3xx success, 5xx failure, 4xx no signal.
//  7. Transform-out, audit record, metrics.
//
// Rejections at steps 1-2 log zero elapsed time; everything after
// admission is timed from resolution through transform-out.
//
// # Quick Start
//
//	proc := gateway.NewProcessor(gate, limiter, registry, sink,
//		gateway.WithDispatchTimeout(5*time.Second),
//		gateway.WithLogger(logger),
//		gateway.WithMetrics(metricsRegistry),
//	)
//	resp := proc.Process(ctx, gateway.Request{
//		Service:   "users",
//		Path:      "/api/users/42",
//		Method:    http.MethodGet,
//		Headers:   headers,
//		ClientKey: clientAddr,
//		APIKey:    apiKey,
//	})
package gateway
