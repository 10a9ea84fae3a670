package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/gateway"
	"github.com/sania-talib/api-gateway-project/health"
	"github.com/sania-talib/api-gateway-project/pkg/security"
	"github.com/sania-talib/api-gateway-project/pkg/tlsutil"
)

// APIPrefix is the path prefix owned by the request pipeline.
const APIPrefix = "/api/"

// DefaultMaxRequestSize caps inbound bodies at 1 MiB.
const DefaultMaxRequestSize = 1 << 20

// Server is the public HTTP listener in front of a gateway.Processor.
type Server struct {
	proc    *gateway.Processor
	monitor *health.Monitor
	logger  *slog.Logger

	addr            string
	readTimeout     time.Duration
	shutdownTimeout time.Duration
	maxRequestSize  int64
	security        security.Config

	start    time.Time
	requests atomic.Int64

	mu      sync.Mutex
	server  *http.Server
	tlsStop func()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthMonitor exposes the monitor's aggregate on /health. Without
// one the endpoint reports a bare healthy status.
func WithHealthMonitor(monitor *health.Monitor) Option {
	return func(s *Server) { s.monitor = monitor }
}

// WithMaxRequestSize caps inbound body size in bytes. Non-positive
// values keep the default.
func WithMaxRequestSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRequestSize = n
		}
	}
}

// WithSecurity enables TLS on the listener when the server TLS section
// is enabled. The gateway usually sits behind an upstream terminator,
// so this is off unless configured.
func WithSecurity(cfg security.Config) Option {
	return func(s *Server) { s.security = cfg }
}

// NewServer builds the public listener. addr is the listen address;
// readTimeout and shutdownTimeout bound request reads and graceful
// stops respectively, falling back to sane defaults when non-positive.
func NewServer(addr string, readTimeout, shutdownTimeout time.Duration, proc *gateway.Processor, opts ...Option) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	s := &Server{
		proc:            proc,
		logger:          slog.Default(),
		addr:            addr,
		readTimeout:     readTimeout,
		shutdownTimeout: shutdownTimeout,
		maxRequestSize:  DefaultMaxRequestSize,
		start:           time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table. Exposed so tests can drive the
// transport through httptest without a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(APIPrefix, s.handleAPI)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start runs the listener until Stop is called or the listener fails.
// A clean shutdown returns nil.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "transport.Server", "Start", "start listener")
	}

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: s.readTimeout,
	}

	useTLS := s.security.TLS.Server.Enabled
	if useTLS {
		tlsConfig, tlsStop, err := tlsutil.LoadServerTLSConfigWithACME(context.Background(), s.security.TLS.Server)
		if err != nil {
			s.mu.Unlock()
			return errors.WrapFatal(err, "transport.Server", "Start", "load TLS config")
		}
		srv.TLSConfig = tlsConfig
		s.tlsStop = tlsStop
	}

	s.server = srv
	s.mu.Unlock()

	s.logger.Info("gateway listening", "addr", s.addr, "tls", useTLS)

	var err error
	if useTLS {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "transport.Server", "Start", "serve")
	}
	return nil
}

// Stop drains in-flight requests and closes the listener, waiting up to
// the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	tlsStop := s.tlsStop
	s.server = nil
	s.tlsStop = nil
	s.mu.Unlock()

	if tlsStop != nil {
		tlsStop()
	}
	if srv == nil {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return errors.WrapTransient(err, "transport.Server", "Stop", "drain listener")
	}
	return nil
}

// allowedMethods are the verbs the pipeline accepts under /api/.
var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// handleAPI decodes one wire request, runs the pipeline, and writes the
// pipeline's answer. Only wire-level faults are rejected here; every
// admission decision belongs to the processor so it can audit it.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	requestID := getOrGenerateRequestID(r)
	w.Header().Set("X-Request-ID", requestID)

	if !allowedMethods[r.Method] {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Method %s not allowed.", r.Method),
		})
		return
	}

	defer r.Body.Close() //nolint:errcheck // nothing useful to do with a close error

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	headers := flattenHeaders(r.Header)
	// flattenHeaders emits canonical MIME casing; match it so the map
	// holds a single entry for the ID whether inherited or minted.
	headers[http.CanonicalHeaderKey("X-Request-ID")] = requestID

	req := gateway.Request{
		Service:   serviceName(r.URL.Path),
		Path:      r.URL.Path,
		Method:    r.Method,
		Headers:   headers,
		Body:      body,
		ClientKey: clientKey(r),
		APIKey:    r.Header.Get("X-API-Key"),
	}

	resp := s.proc.Process(r.Context(), req)
	s.writeJSON(w, resp.Status, resp.Payload)
}

// readBody reads and decodes the request body. The boolean is false when
// the response has already been written: payload too large (413) or
// undecodable JSON (400). A missing or empty body decodes to nil.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (any, bool) {
	// Read one byte past the cap to tell "at the limit" from "over it".
	raw, err := io.ReadAll(io.LimitReader(r.Body, s.maxRequestSize+1))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "Failed to read request body.",
		})
		return nil, false
	}
	if int64(len(raw)) > s.maxRequestSize {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Request body exceeds maximum size of %d bytes.", s.maxRequestSize),
		})
		return nil, false
	}
	if len(raw) == 0 {
		return nil, true
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "Request body is not valid JSON.",
		})
		return nil, false
	}
	return body, true
}

// handleHealth reports the aggregate component health. Unhealthy answers
// 503 so load balancers drain the instance; degraded still serves.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := health.NewHealthy("api-gateway", "all components healthy")
	if s.monitor != nil {
		status = s.monitor.AggregateHealth("api-gateway")
	}
	status = status.WithMetrics(&health.Metrics{
		Uptime:            time.Since(s.start),
		RequestsProcessed: s.requests.Load(),
	})

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// handleRoot answers the banner on / and a JSON 404 everywhere else the
// mux has no better match.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  "error",
			"message": "Not found.",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "api-gateway",
		"endpoints": []string{
			APIPrefix + "{service}/...",
			"/health",
		},
	})
}

// writeJSON encodes payload before touching the response so an encoding
// failure can still answer a well-formed 500.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("response encoding failed", "error", err)
		status = http.StatusInternalServerError
		data = []byte(`{"status":"error","message":"internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}

// getOrGenerateRequestID propagates the client's X-Request-ID or mints
// one: 8 random bytes hex, with a timestamp fallback should the random
// source fail.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// serviceName extracts the routing key: the first path segment after
// /api/. Empty when the path stops at the prefix; the pipeline answers
// that with its 404.
func serviceName(path string) string {
	rest := strings.TrimPrefix(path, APIPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// clientKey identifies the rate-limit subject: the first X-Forwarded-For
// hop when present (the gateway trusts its fronting proxy), otherwise
// the remote address without the port.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// flattenHeaders keeps the first value of each header, which is all the
// pipeline and backends consume.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		if len(values) > 0 {
			out[k] = values[0]
		}
	}
	return out
}
