package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Request pipeline metrics
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RateLimitedTotal  prometheus.Counter
	AuthDeniedTotal   prometheus.Counter
	AuthStoreFailures prometheus.Counter
	CircuitRejections *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec

	// Audit trail metrics
	AuditDropped  prometheus.Counter
	AuditFailures prometheus.Counter

	// Health metrics
	HealthCheckStatus *prometheus.GaugeVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Request pipeline metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "requests_total",
				Help:      "Total number of requests processed, by backing service and status code",
			},
			[]string{"service", "code"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Request processing duration in seconds, by backing service",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),

		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),

		AuthDeniedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "auth",
				Name:      "denied_total",
				Help:      "Total number of requests rejected for a missing or inactive API key",
			},
		),

		AuthStoreFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "auth",
				Name:      "store_failures_total",
				Help:      "Total number of key store lookups that failed",
			},
		),

		CircuitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "circuit",
				Name:      "rejections_total",
				Help:      "Total number of requests rejected by an open circuit breaker",
			},
			[]string{"service"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),

		// Audit trail metrics
		AuditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "audit",
				Name:      "dropped_total",
				Help:      "Total number of audit records dropped because the queue was full",
			},
		),

		AuditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "audit",
				Name:      "failures_total",
				Help:      "Total number of audit records that failed to write after retries",
			},
		),

		// Health metrics
		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordRequest increments the request counter for a service and status code
func (c *Metrics) RecordRequest(service string, code int) {
	c.RequestsTotal.WithLabelValues(service, strconv.Itoa(code)).Inc()
}

// RecordRequestDuration records end-to-end processing time for a service
func (c *Metrics) RecordRequestDuration(service string, duration time.Duration) {
	c.RequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordRateLimited increments the rate limiter rejection counter
func (c *Metrics) RecordRateLimited() {
	c.RateLimitedTotal.Inc()
}

// RecordAuthDenied increments the authentication rejection counter
func (c *Metrics) RecordAuthDenied() {
	c.AuthDeniedTotal.Inc()
}

// RecordAuthStoreFailure increments the key store failure counter
func (c *Metrics) RecordAuthStoreFailure() {
	c.AuthStoreFailures.Inc()
}

// RecordCircuitRejection increments the open-circuit rejection counter for a service
func (c *Metrics) RecordCircuitRejection(service string) {
	c.CircuitRejections.WithLabelValues(service).Inc()
}

// RecordBreakerState updates the circuit breaker state gauge for a service
func (c *Metrics) RecordBreakerState(service string, state int) {
	c.BreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordAuditDropped increments the dropped audit record counter
func (c *Metrics) RecordAuditDropped() {
	c.AuditDropped.Inc()
}

// RecordAuditFailure increments the failed audit write counter
func (c *Metrics) RecordAuditFailure() {
	c.AuditFailures.Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
