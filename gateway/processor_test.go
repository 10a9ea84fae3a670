package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sania-talib/api-gateway-project/audit"
	"github.com/sania-talib/api-gateway-project/auth"
	"github.com/sania-talib/api-gateway-project/breaker"
	"github.com/sania-talib/api-gateway-project/ratelimit"
	"github.com/sania-talib/api-gateway-project/service"
)

const testKey = "test-key-123"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFunc func(ctx context.Context, key string) (bool, error)

func (f storeFunc) IsActive(ctx context.Context, key string) (bool, error) {
	return f(ctx, key)
}

type limiterFunc func(ctx context.Context, clientKey string, now time.Time) (bool, error)

func (f limiterFunc) Admit(ctx context.Context, clientKey string, now time.Time) (bool, error) {
	return f(ctx, clientKey, now)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func respondWith(payload map[string]any, status int) service.HandlerFunc {
	return func(context.Context, map[string]string, any) (any, int, error) {
		return payload, status, nil
	}
}

func successPayload() map[string]any {
	return map[string]any{
		"status":  "success",
		"message": "Users fetched successfully",
		"data":    []any{map[string]any{"id": 1, "name": "Alice"}},
	}
}

// pipeline wires a Processor around one "users" service with a fake
// clock, a permissive limiter, and a capturing sink.
type pipeline struct {
	proc  *Processor
	clock *fakeClock
	sink  *audit.MemorySink
	reg   *service.Registration
}

func newPipeline(t *testing.T, handler service.Handler, opts ...Option) *pipeline {
	t.Helper()

	clock := newFakeClock()
	sink := audit.NewMemorySink(64)
	reg := &service.Registration{
		Name:    "users",
		Handler: handler,
		Breaker: breaker.New(3, 10*time.Second),
	}

	base := []Option{
		WithClock(clock.Now),
		WithLogger(discardLogger()),
	}
	proc := NewProcessor(
		auth.NewGate(auth.NewStaticKeys(testKey)),
		ratelimit.NewMemory(1000, time.Minute),
		service.NewRegistry(reg),
		sink,
		append(base, opts...)...,
	)
	return &pipeline{proc: proc, clock: clock, sink: sink, reg: reg}
}

func userRequest() Request {
	return Request{
		Service: "users",
		Path:    "/api/users/list",
		Method:  http.MethodGet,
		Headers: map[string]string{
			"X-API-Key":    testKey,
			"X-Request-ID": "req-1",
		},
		ClientKey: "10.0.0.1",
		APIKey:    testKey,
	}
}

func asMap(t *testing.T, payload any) map[string]any {
	t.Helper()
	m, ok := payload.(map[string]any)
	require.True(t, ok, "payload is %T, want map", payload)
	return m
}

func TestProcess_Success(t *testing.T) {
	p := newPipeline(t, respondWith(successPayload(), http.StatusOK))

	start := p.clock.Now()
	resp := p.proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusOK, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "success", payload["status"])

	meta, ok := payload["gateway_metadata"].(map[string]any)
	require.True(t, ok, "success envelope missing gateway_metadata")
	assert.Equal(t, "api-gateway", meta["processed_by"])

	records := p.sink.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "/api/users/list", rec.Endpoint)
	assert.Equal(t, http.MethodGet, rec.Method)
	assert.Equal(t, http.StatusOK, rec.Status)
	assert.False(t, rec.IsError)
	assert.True(t, rec.Timestamp.Equal(start))

	assert.Equal(t, breaker.StateClosed, p.reg.Breaker.State())
}

func TestProcess_ElapsedCoversDispatchOnly(t *testing.T) {
	var p *pipeline
	handler := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		p.clock.Advance(42 * time.Millisecond)
		return successPayload(), http.StatusOK, nil
	})
	p = newPipeline(t, handler)

	resp := p.proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusOK, resp.Status)
	records := p.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(42), records[0].ResponseTimeMs)
}

func TestProcess_TransformsRequestForDispatch(t *testing.T) {
	var (
		gotHeaders map[string]string
		gotBody    any
		gotRoute   service.Route
		hadRoute   bool
	)
	handler := service.HandlerFunc(func(ctx context.Context, headers map[string]string, body any) (any, int, error) {
		gotHeaders = headers
		gotBody = body
		gotRoute, hadRoute = service.RouteFromContext(ctx)
		return successPayload(), http.StatusOK, nil
	})
	p := newPipeline(t, handler)

	req := userRequest()
	req.Method = http.MethodPost
	req.Path = "/api/users/create"
	req.Body = map[string]any{"name": "Carol"}

	resp := p.proc.Process(context.Background(), req)
	require.Equal(t, http.StatusOK, resp.Status)

	_, hasKey := gotHeaders["X-API-Key"]
	assert.False(t, hasKey, "raw API key crossed the trust boundary")
	assert.Equal(t, "internal_token_for_"+testKey, gotHeaders["X-Internal-Auth"])
	assert.Equal(t, "API-Gateway/1.0", gotHeaders["User-Agent"])

	body := asMap(t, gotBody)
	assert.Equal(t, "Carol", body["name"])
	assert.NotEmpty(t, body["gateway_processed_timestamp"])

	require.True(t, hadRoute)
	assert.Equal(t, "/api/users/create", gotRoute.Path)
	assert.Equal(t, http.MethodPost, gotRoute.Method)

	// The caller's view of the request is untouched.
	assert.Equal(t, testKey, req.Headers["X-API-Key"])
	assert.NotContains(t, req.Body.(map[string]any), "gateway_processed_timestamp")
}

func TestProcess_MissingKeyRejects(t *testing.T) {
	var invoked atomic.Int32
	handler := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		invoked.Add(1)
		return successPayload(), http.StatusOK, nil
	})
	p := newPipeline(t, handler)

	req := userRequest()
	req.APIKey = ""
	resp := p.proc.Process(context.Background(), req)

	require.Equal(t, http.StatusUnauthorized, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "Unauthorized: invalid or missing API key.", payload["message"])

	records := p.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusUnauthorized, records[0].Status)
	assert.True(t, records[0].IsError)
	assert.Equal(t, int64(0), records[0].ResponseTimeMs)

	assert.Equal(t, int32(0), invoked.Load())
	assert.Equal(t, 0, p.reg.Breaker.FailureCount())
}

func TestProcess_UnknownKeyRejects(t *testing.T) {
	p := newPipeline(t, respondWith(successPayload(), http.StatusOK))

	req := userRequest()
	req.APIKey = "not-a-key"
	resp := p.proc.Process(context.Background(), req)

	require.Equal(t, http.StatusUnauthorized, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "Unauthorized: invalid or missing API key.", payload["message"])
}

func TestProcess_AuthStoreFailureFailsClosed(t *testing.T) {
	var invoked atomic.Int32
	handler := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		invoked.Add(1)
		return successPayload(), http.StatusOK, nil
	})

	clock := newFakeClock()
	sink := audit.NewMemorySink(8)
	reg := &service.Registration{
		Name:    "users",
		Handler: handler,
		Breaker: breaker.New(3, 10*time.Second),
	}
	gate := auth.NewGate(storeFunc(func(context.Context, string) (bool, error) {
		return false, errors.New("connection refused")
	}))
	proc := NewProcessor(gate, ratelimit.NewMemory(1000, time.Minute), service.NewRegistry(reg), sink,
		WithClock(clock.Now), WithLogger(discardLogger()))

	resp := proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusUnauthorized, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "Unauthorized: invalid or missing API key.", payload["message"])

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(0), records[0].ResponseTimeMs)
	assert.Equal(t, int32(0), invoked.Load())
}

func TestProcess_RateLimitRejects(t *testing.T) {
	var invoked atomic.Int32
	handler := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		invoked.Add(1)
		return successPayload(), http.StatusOK, nil
	})

	clock := newFakeClock()
	sink := audit.NewMemorySink(8)
	reg := &service.Registration{
		Name:    "users",
		Handler: handler,
		Breaker: breaker.New(3, 10*time.Second),
	}
	proc := NewProcessor(
		auth.NewGate(auth.NewStaticKeys(testKey)),
		ratelimit.NewMemory(2, time.Minute),
		service.NewRegistry(reg),
		sink,
		WithClock(clock.Now), WithLogger(discardLogger()))

	for i := 0; i < 2; i++ {
		resp := proc.Process(context.Background(), userRequest())
		require.Equal(t, http.StatusOK, resp.Status)
	}

	resp := proc.Process(context.Background(), userRequest())
	require.Equal(t, http.StatusTooManyRequests, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "Rate limit exceeded. Try again later.", payload["message"])

	records := sink.Records()
	require.Len(t, records, 3)
	last := records[2]
	assert.Equal(t, http.StatusTooManyRequests, last.Status)
	assert.True(t, last.IsError)
	assert.Equal(t, int64(0), last.ResponseTimeMs)

	assert.Equal(t, int32(2), invoked.Load())
}

func TestProcess_LimiterFailureAdmits(t *testing.T) {
	clock := newFakeClock()
	sink := audit.NewMemorySink(8)
	reg := &service.Registration{
		Name:    "users",
		Handler: respondWith(successPayload(), http.StatusOK),
		Breaker: breaker.New(3, 10*time.Second),
	}
	limiter := limiterFunc(func(context.Context, string, time.Time) (bool, error) {
		return false, errors.New("redis: connection pool timeout")
	})
	proc := NewProcessor(
		auth.NewGate(auth.NewStaticKeys(testKey)),
		limiter,
		service.NewRegistry(reg),
		sink,
		WithClock(clock.Now), WithLogger(discardLogger()))

	resp := proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusOK, resp.Status)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusOK, records[0].Status)
}

func TestProcess_UnknownService(t *testing.T) {
	p := newPipeline(t, respondWith(successPayload(), http.StatusOK))

	req := userRequest()
	req.Service = "ghost"
	req.Path = "/api/ghost/list"
	resp := p.proc.Process(context.Background(), req)

	require.Equal(t, http.StatusNotFound, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "Service not found.", payload["message"])

	records := p.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "/api/ghost/list", records[0].Endpoint)
	assert.True(t, records[0].IsError)
}

func TestProcess_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var invoked atomic.Int32
	failing := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		invoked.Add(1)
		return map[string]any{"status": "error", "message": "backend exploded"}, http.StatusInternalServerError, nil
	})
	p := newPipeline(t, failing)

	for i := 0; i < 3; i++ {
		resp := p.proc.Process(context.Background(), userRequest())
		require.Equal(t, http.StatusInternalServerError, resp.Status, "call %d", i+1)
	}
	require.Equal(t, breaker.StateOpen, p.reg.Breaker.State())

	resp := p.proc.Process(context.Background(), userRequest())
	require.Equal(t, http.StatusServiceUnavailable, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "Users Service Unavailable", payload["message"])

	assert.Equal(t, int32(3), invoked.Load(), "open breaker must shed without dispatching")

	records := p.sink.Records()
	require.Len(t, records, 4)
	assert.Equal(t, http.StatusServiceUnavailable, records[3].Status)
	assert.True(t, records[3].IsError)
}

func TestProcess_BreakerClosesAfterSuccessfulTrial(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	handler := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		code := int(status.Load())
		if code == http.StatusOK {
			return successPayload(), code, nil
		}
		return map[string]any{"status": "error", "message": "still down"}, code, nil
	})
	p := newPipeline(t, handler)

	for i := 0; i < 3; i++ {
		p.proc.Process(context.Background(), userRequest())
	}
	require.Equal(t, breaker.StateOpen, p.reg.Breaker.State())

	// Within the reset window the breaker keeps shedding.
	p.clock.Advance(5 * time.Second)
	resp := p.proc.Process(context.Background(), userRequest())
	require.Equal(t, http.StatusServiceUnavailable, resp.Status)

	// Past the window one trial call goes through; success closes.
	status.Store(http.StatusOK)
	p.clock.Advance(6 * time.Second)
	resp = p.proc.Process(context.Background(), userRequest())
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, breaker.StateClosed, p.reg.Breaker.State())

	resp = p.proc.Process(context.Background(), userRequest())
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestProcess_FailedTrialReopensImmediately(t *testing.T) {
	failing := respondWith(map[string]any{"status": "error", "message": "still down"}, http.StatusInternalServerError)
	p := newPipeline(t, failing)

	for i := 0; i < 3; i++ {
		p.proc.Process(context.Background(), userRequest())
	}
	require.Equal(t, breaker.StateOpen, p.reg.Breaker.State())

	p.clock.Advance(11 * time.Second)
	resp := p.proc.Process(context.Background(), userRequest())
	require.Equal(t, http.StatusInternalServerError, resp.Status, "trial call reaches the handler")
	require.Equal(t, breaker.StateOpen, p.reg.Breaker.State(), "one failed trial reopens")

	resp = p.proc.Process(context.Background(), userRequest())
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestProcess_ClientErrorsCarryNoHealthSignal(t *testing.T) {
	badRequest := respondWith(map[string]any{"error": "missing field: name"}, http.StatusBadRequest)
	p := newPipeline(t, badRequest)

	for i := 0; i < 5; i++ {
		resp := p.proc.Process(context.Background(), userRequest())
		require.Equal(t, http.StatusBadRequest, resp.Status, "call %d", i+1)
	}

	assert.Equal(t, breaker.StateClosed, p.reg.Breaker.State())
	assert.Equal(t, 0, p.reg.Breaker.FailureCount())

	// The outbound transform normalizes the error shape.
	resp := p.proc.Process(context.Background(), userRequest())
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "missing field: name", payload["message"])
}

func TestProcess_DispatchErrorSynthesizes500(t *testing.T) {
	broken := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		return nil, 0, errors.New("dial tcp: connection refused")
	})
	p := newPipeline(t, broken)

	resp := p.proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusInternalServerError, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "Gateway could not process request to users.", payload["message"])

	assert.Equal(t, 1, p.reg.Breaker.FailureCount())

	records := p.sink.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].IsError)
}

func TestProcess_HandlerPanicRecovered(t *testing.T) {
	panicking := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		panic("nil map write")
	})
	p := newPipeline(t, panicking)

	resp := p.proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusInternalServerError, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "Gateway could not process request to users.", payload["message"])

	assert.Equal(t, 1, p.reg.Breaker.FailureCount())
	assert.Equal(t, 1, p.sink.Len(), "panic path still writes exactly one record")
}

func TestProcess_DispatchTimeout(t *testing.T) {
	stuck := service.HandlerFunc(func(ctx context.Context, _ map[string]string, _ any) (any, int, error) {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	})
	p := newPipeline(t, stuck, WithDispatchTimeout(20*time.Millisecond))

	resp := p.proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusGatewayTimeout, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "Request to users timed out.", payload["message"])

	assert.Equal(t, 1, p.reg.Breaker.FailureCount())

	records := p.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusGatewayTimeout, records[0].Status)
	assert.True(t, records[0].IsError)
}

func TestProcess_ClientCancellation(t *testing.T) {
	stuck := service.HandlerFunc(func(ctx context.Context, _ map[string]string, _ any) (any, int, error) {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	})
	p := newPipeline(t, stuck, WithDispatchTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	resp := p.proc.Process(ctx, userRequest())

	require.Equal(t, http.StatusGatewayTimeout, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "Request to users timed out.", payload["message"])

	assert.Equal(t, 1, p.reg.Breaker.FailureCount())
	assert.Equal(t, 1, p.sink.Len(), "cancelled call still writes its record")
}

func TestProcess_SinkFailureLeavesResponseUntouched(t *testing.T) {
	clock := newFakeClock()
	reg := &service.Registration{
		Name:    "users",
		Handler: respondWith(successPayload(), http.StatusOK),
		Breaker: breaker.New(3, 10*time.Second),
	}
	sink := audit.SinkFunc(func(context.Context, audit.Record) error {
		return errors.New("disk full")
	})
	proc := NewProcessor(
		auth.NewGate(auth.NewStaticKeys(testKey)),
		ratelimit.NewMemory(1000, time.Minute),
		service.NewRegistry(reg),
		sink,
		WithClock(clock.Now), WithLogger(discardLogger()))

	resp := proc.Process(context.Background(), userRequest())

	require.Equal(t, http.StatusOK, resp.Status)
	payload := asMap(t, resp.Payload)
	assert.Equal(t, "success", payload["status"])
	assert.Contains(t, payload, "gateway_metadata")
}

func TestProcess_ExactlyOneRecordPerOutcome(t *testing.T) {
	build := func(handler service.Handler, breakerFailures int, opts ...Option) (*Processor, *audit.MemorySink) {
		clock := newFakeClock()
		sink := audit.NewMemorySink(8)
		reg := &service.Registration{
			Name:    "users",
			Handler: handler,
			Breaker: breaker.New(3, 10*time.Second),
		}
		for i := 0; i < breakerFailures; i++ {
			reg.Breaker.RecordFailure(clock.Now())
		}
		base := []Option{WithClock(clock.Now), WithLogger(discardLogger())}
		proc := NewProcessor(
			auth.NewGate(auth.NewStaticKeys(testKey)),
			ratelimit.NewMemory(1000, time.Minute),
			service.NewRegistry(reg),
			sink,
			append(base, opts...)...)
		return proc, sink
	}

	ok := respondWith(successPayload(), http.StatusOK)
	broken := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		return nil, 0, errors.New("boom")
	})
	panicking := service.HandlerFunc(func(context.Context, map[string]string, any) (any, int, error) {
		panic("boom")
	})
	stuck := service.HandlerFunc(func(ctx context.Context, _ map[string]string, _ any) (any, int, error) {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	})

	noKey := userRequest()
	noKey.APIKey = ""
	ghost := userRequest()
	ghost.Service = "ghost"

	tests := []struct {
		name            string
		handler         service.Handler
		breakerFailures int
		opts            []Option
		req             Request
		wantStatus      int
	}{
		{"success", ok, 0, nil, userRequest(), http.StatusOK},
		{"unauthorized", ok, 0, nil, noKey, http.StatusUnauthorized},
		{"unknown service", ok, 0, nil, ghost, http.StatusNotFound},
		{"circuit open", ok, 3, nil, userRequest(), http.StatusServiceUnavailable},
		{"dispatch error", broken, 0, nil, userRequest(), http.StatusInternalServerError},
		{"handler panic", panicking, 0, nil, userRequest(), http.StatusInternalServerError},
		{"dispatch timeout", stuck, 0, []Option{WithDispatchTimeout(15 * time.Millisecond)}, userRequest(), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, sink := build(tt.handler, tt.breakerFailures, tt.opts...)
			resp := proc.Process(context.Background(), tt.req)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, 1, sink.Total(), "every outcome writes exactly one record")
		})
	}
}

func TestProcess_ConcurrentCalls(t *testing.T) {
	p := newPipeline(t, respondWith(successPayload(), http.StatusOK))

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp := p.proc.Process(context.Background(), userRequest())
			assert.Equal(t, http.StatusOK, resp.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, p.sink.Total())
	assert.Equal(t, breaker.StateClosed, p.reg.Breaker.State())
}

func TestCapitalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"users", "Users"},
		{"PRODUCTS", "Products"},
		{"orders-v2", "Orders-v2"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, capitalize(tt.in))
	}
}
