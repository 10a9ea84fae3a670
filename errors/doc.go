// Package errors classifies failures so callers can decide between
// retrying, rejecting, and stopping.
//
// Three classes cover the gateway's needs: Transient (temporary,
// retryable), Invalid (caused by the input, never retryable), and Fatal
// (unrecoverable). Classification rides on Go's standard error chain:
// errors.Is and errors.As see through every wrapper this package
// produces.
//
// Known conditions use sentinel variables:
//
//	if breaker.IsOpen(now) {
//	    return errors.ErrCircuitOpen
//	}
//
// Context is added in one fixed shape, "component.method: action
// failed: …", with the class attached by the Wrap family:
//
//	errors.WrapTransient(err, "Store", "Ping", "database health check")
//	errors.WrapInvalid(err, "Registry", "Resolve", "service lookup")
//	errors.WrapFatal(err, "Loader", "Load", "parse config")
//
// Callers branch on the class, not on message text:
//
//	if err := sink.Write(ctx, record); err != nil && errors.IsTransient(err) {
//	    // retry with backoff
//	}
//
// Errors that arrive unclassified from third-party code fall back to
// conservative message heuristics for IsTransient and IsFatal;
// IsInvalid never guesses.
//
// The request pipeline's rejection stages each have a sentinel, mapped
// to the HTTP status the gateway answers with:
//
//	ErrUnauthorized     authentication gate denied the key       (401)
//	ErrRateLimited      client exceeded its sliding window       (429)
//	ErrServiceNotFound  no registration for the requested name   (404)
//	ErrCircuitOpen      breaker rejecting while service unhealthy (503)
//	ErrDispatchTimeout  downstream attempt exceeded its budget    (504)
//	ErrDownstream       handler failed or panicked                (500)
package errors
