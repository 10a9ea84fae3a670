package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/sania-talib/api-gateway-project/audit"
	"github.com/sania-talib/api-gateway-project/auth"
	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/metric"
	"github.com/sania-talib/api-gateway-project/ratelimit"
	"github.com/sania-talib/api-gateway-project/service"
	"github.com/sania-talib/api-gateway-project/transform"
)

// DefaultDispatchTimeout bounds one backend dispatch.
const DefaultDispatchTimeout = 5 * time.Second

// Client-facing rejection messages.
const (
	msgUnauthorized = "Unauthorized: invalid or missing API key."
	msgRateLimited  = "Rate limit exceeded. Try again later."
	msgNotFound     = "Service not found."
)

// Processor runs requests through the gateway pipeline. Construct with
// NewProcessor; safe for concurrent use.
type Processor struct {
	gate     *auth.Gate
	limiter  ratelimit.Limiter
	registry *service.Registry
	sink     audit.Sink

	dispatchTimeout time.Duration
	now             func() time.Time
	logger          *slog.Logger
	metrics         *metric.Metrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithDispatchTimeout sets the per-dispatch budget. Non-positive values
// keep the default.
func WithDispatchTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.dispatchTimeout = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics wires pipeline counters into the given registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Processor) {
		if registry != nil {
			p.metrics = registry.CoreMetrics()
		}
	}
}

// WithClock replaces the wall clock for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor assembles the pipeline around its four collaborators.
func NewProcessor(gate *auth.Gate, limiter ratelimit.Limiter, registry *service.Registry, sink audit.Sink, opts ...Option) *Processor {
	p := &Processor{
		gate:            gate,
		limiter:         limiter,
		registry:        registry,
		sink:            sink,
		dispatchTimeout: DefaultDispatchTimeout,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one request through the pipeline. It never returns an
// error: every failure category is recovered into a well-formed
// Response, and every call writes exactly one audit record.
func (p *Processor) Process(ctx context.Context, req Request) Response {
	// Auth and rate-limit rejections are O(1) gate decisions made
	// before any service work; they log zero elapsed time.
	authorized, err := p.gate.Authenticate(ctx, req.APIKey)
	if err != nil {
		// Fail closed, but surface the store failure distinctly from a
		// plain bad key.
		if p.metrics != nil {
			p.metrics.RecordAuthStoreFailure()
		}
		p.logger.Error("api key store lookup failed",
			"request_id", requestID(req.Headers),
			"service", req.Service,
			"error", err)
		return p.reject(ctx, req, http.StatusUnauthorized, msgUnauthorized)
	}
	if !authorized {
		if p.metrics != nil {
			p.metrics.RecordAuthDenied()
		}
		p.logger.Warn("request rejected",
			"request_id", requestID(req.Headers),
			"reason", errors.ErrUnauthorized,
			"service", req.Service,
			"method", req.Method,
			"path", req.Path)
		return p.reject(ctx, req, http.StatusUnauthorized, msgUnauthorized)
	}

	admitted, err := p.limiter.Admit(ctx, req.ClientKey, p.now())
	if err != nil {
		// Budget enforcement fails open: an unreachable limiter backend
		// must not take the gateway down with it.
		p.logger.Error("rate limiter backend failed, admitting request",
			"request_id", requestID(req.Headers),
			"client_key", req.ClientKey,
			"error", err)
		admitted = true
	}
	if !admitted {
		if p.metrics != nil {
			p.metrics.RecordRateLimited()
		}
		p.logger.Warn("request rejected",
			"request_id", requestID(req.Headers),
			"reason", errors.ErrRateLimited,
			"client_key", req.ClientKey,
			"service", req.Service)
		return p.reject(ctx, req, http.StatusTooManyRequests, msgRateLimited)
	}

	// Everything past admission is timed: resolution through
	// transform-out.
	start := p.now()

	reg, ok := p.registry.Resolve(req.Service)
	if !ok {
		p.logger.Warn("request rejected",
			"request_id", requestID(req.Headers),
			"reason", errors.ErrServiceNotFound,
			"service", req.Service,
			"path", req.Path)
		return p.finish(ctx, req, start, errorPayload(msgNotFound), http.StatusNotFound)
	}

	if reg.Breaker.IsOpen(p.now()) {
		if p.metrics != nil {
			p.metrics.RecordCircuitRejection(req.Service)
			p.metrics.RecordBreakerState(req.Service, int(reg.Breaker.State()))
		}
		p.logger.Warn("request rejected",
			"request_id", requestID(req.Headers),
			"reason", errors.ErrCircuitOpen,
			"service", req.Service)
		msg := fmt.Sprintf("%s Service Unavailable", capitalize(req.Service))
		return p.finish(ctx, req, start, errorPayload(msg), http.StatusServiceUnavailable)
	}

	headers, body := transform.Request(req.Headers, req.Body, p.now())

	payload, status := p.dispatch(ctx, req, reg.Handler, headers, body)

	// 2xx/3xx close or keep the breaker closed, 5xx counts a failure,
	// 4xx carries no health signal.
	switch {
	case status >= 200 && status < 400:
		reg.Breaker.RecordSuccess()
	case status >= 500:
		reg.Breaker.RecordFailure(p.now())
	}
	if p.metrics != nil {
		p.metrics.RecordBreakerState(req.Service, int(reg.Breaker.State()))
	}

	return p.finish(ctx, req, start, payload, status)
}

// dispatchOutcome carries a handler result across the timeout boundary.
type dispatchOutcome struct {
	payload any
	status  int
	err     error
}

// dispatch invokes the handler under the dispatch budget, absorbing
// errors, panics, timeouts, and cancellation into synthesized
// responses. A raw downstream fault never propagates.
func (p *Processor) dispatch(ctx context.Context, req Request, handler service.Handler, headers map[string]string, body any) (any, int) {
	dctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()
	dctx = service.WithRoute(dctx, service.Route{Path: req.Path, Method: req.Method})

	outcome := make(chan dispatchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- dispatchOutcome{
					err: errors.Wrap(
						fmt.Errorf("handler panic: %v", r),
						"gateway.Processor", "dispatch", "invoke handler"),
				}
			}
		}()
		payload, status, err := handler.Invoke(dctx, headers, body)
		outcome <- dispatchOutcome{payload: payload, status: status, err: err}
	}()

	select {
	case out := <-outcome:
		if out.err != nil {
			p.logger.Error("dispatch failed",
				"request_id", requestID(req.Headers),
				"reason", errors.ErrDownstream,
				"service", req.Service,
				"error", out.err)
			msg := fmt.Sprintf("Gateway could not process request to %s.", req.Service)
			return errorPayload(msg), http.StatusInternalServerError
		}
		return out.payload, out.status
	case <-dctx.Done():
		// Budget exhaustion and client cancellation land here alike:
		// an abandoned call is a failure outcome either way.
		p.logger.Error("dispatch abandoned",
			"request_id", requestID(req.Headers),
			"reason", errors.ErrDispatchTimeout,
			"service", req.Service,
			"timeout", p.dispatchTimeout,
			"cause", dctx.Err())
		msg := fmt.Sprintf("Request to %s timed out.", req.Service)
		return errorPayload(msg), http.StatusGatewayTimeout
	}
}

// finish applies the outbound transform, writes the audit record, and
// updates request metrics. Elapsed time runs from service resolution to
// here.
func (p *Processor) finish(ctx context.Context, req Request, start time.Time, payload any, status int) Response {
	payload = transform.Response(req.Service, payload, status, p.now())

	elapsed := p.now().Sub(start)
	p.log(ctx, req, status, elapsed.Milliseconds())

	if p.metrics != nil {
		p.metrics.RecordRequest(req.Service, status)
		p.metrics.RecordRequestDuration(req.Service, elapsed)
	}
	p.logger.Debug("request processed",
		"request_id", requestID(req.Headers),
		"service", req.Service,
		"method", req.Method,
		"path", req.Path,
		"status", status,
		"duration_ms", elapsed.Milliseconds())

	return Response{Payload: payload, Status: status}
}

// reject answers a pre-admission refusal: already-normalized payload,
// zero logged elapsed time, breaker untouched.
func (p *Processor) reject(ctx context.Context, req Request, status int, message string) Response {
	p.log(ctx, req, status, 0)
	if p.metrics != nil {
		p.metrics.RecordRequest(req.Service, status)
	}
	return Response{Payload: errorPayload(message), Status: status}
}

// log writes the one audit record this call produces. A sink failure
// never alters the client-visible outcome.
func (p *Processor) log(ctx context.Context, req Request, status int, elapsedMs int64) {
	// The record must outlive a client disconnect.
	ctx = context.WithoutCancel(ctx)

	record := audit.Record{
		Timestamp:      p.now(),
		Endpoint:       req.Path,
		Method:         req.Method,
		Status:         status,
		ResponseTimeMs: elapsedMs,
		IsError:        status >= 400,
	}
	if err := p.sink.Write(ctx, record); err != nil {
		if p.metrics != nil {
			p.metrics.RecordAuditFailure()
		}
		p.logger.Error("audit write failed",
			"endpoint", req.Path,
			"error", err)
	}
}

// errorPayload builds the standard error body shape.
func errorPayload(message string) map[string]any {
	return map[string]any{
		"status":  "error",
		"message": message,
	}
}

// capitalize mirrors the service-name casing used in circuit-open
// messages: first rune upper, rest lower.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// requestID finds the transport-assigned request ID, tolerating header
// casing differences.
func requestID(headers map[string]string) string {
	if id, ok := headers["X-Request-ID"]; ok {
		return id
	}
	for k, v := range headers {
		if strings.EqualFold(k, "X-Request-ID") {
			return v
		}
	}
	return ""
}
