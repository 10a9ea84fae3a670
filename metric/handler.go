package metric

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/pkg/security"
	"github.com/sania-talib/api-gateway-project/pkg/tlsutil"
)

// Server is the internal listener exposing the prometheus scrape
// endpoint. It lives on its own port so the public gateway surface
// never serves operational data.
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry
	security security.Config

	mu     sync.Mutex
	server *http.Server
}

// NewServer builds a scrape listener for registry. Zero values fall
// back to port 9090 and path /metrics.
func NewServer(port int, path string, registry *MetricsRegistry, securityCfg security.Config) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		security: securityCfg,
	}
}

// Start runs the listener until Stop is called or the listener fails.
// A clean shutdown returns nil.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "metric.Server", "Start", "start listener")
	}
	if s.registry == nil {
		s.mu.Unlock()
		return errors.WrapFatal(fmt.Errorf("nil registry"), "metric.Server", "Start", "start listener")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	useTLS := s.security.TLS.Server.Enabled
	if useTLS {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(s.security.TLS.Server)
		if err != nil {
			s.mu.Unlock()
			return errors.WrapFatal(err, "metric.Server", "Start", "load TLS config")
		}
		srv.TLSConfig = tlsConfig
	}

	s.server = srv
	s.mu.Unlock()

	var err error
	if useTLS {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "metric.Server", "Start", "serve")
	}
	return nil
}

// Stop closes the listener immediately. Scrapes are cheap and
// stateless, so there is nothing to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Close(); err != nil {
		return errors.WrapTransient(err, "metric.Server", "Stop", "close listener")
	}
	return nil
}

// Address returns the scrape URL.
func (s *Server) Address() string {
	scheme := "http"
	if s.security.TLS.Server.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d%s", scheme, s.port, s.path)
}
