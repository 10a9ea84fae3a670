// Package metric owns the gateway's prometheus surface: a registry
// pre-loaded with the core pipeline metrics, a registration facade for
// components that bring their own collectors, and the internal scrape
// listener.
//
// # Core metrics
//
// NewMetricsRegistry registers the platform set up front:
//
//   - gateway_requests_total{service, code} and
//     gateway_request_duration_seconds{service} for request outcomes
//   - gateway_rate_limited_total, gateway_auth_denied_total and
//     gateway_circuit_rejections_total{service} for pipeline rejections
//   - gateway_breaker_state{service} (0=closed, 1=open, 2=half-open)
//   - gateway_audit_dropped_total and gateway_audit_failures_total for
//     the audit trail
//   - gateway_auth_store_failures_total and
//     gateway_health_status{component} for dependency health
//   - gateway_nats_connected, gateway_nats_rtt_milliseconds and
//     gateway_nats_reconnects_total for the NATS link
//
// Record them through the shared Metrics instance:
//
//	core := registry.CoreMetrics()
//	core.RecordRequest("users", 200)
//	core.RecordRequestDuration("users", 120*time.Millisecond)
//
// # Component metrics
//
// Components that own collectors (the worker pool, the key cache, the
// JetStream mirror) take a MetricsRegistrar and register under their
// own name:
//
//	if err := registrar.RegisterCounter("audit", "dropped_total", dropped); err != nil {
//	    return err
//	}
//
// The registry rejects a second registration under the same key and
// surfaces prometheus name collisions as Invalid errors. Unregister
// frees a key again; caches release their collectors this way when
// they close.
//
// # Scrape listener
//
// Server exposes /metrics (OpenMetrics enabled) and a trivial /health
// on an internal port, separate from the public gateway listener:
//
//	srv := metric.NewServer(9090, "/metrics", registry, securityCfg)
//	go func() {
//	    if err := srv.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer srv.Stop()
//
// Start returns nil after a clean Stop. With server TLS enabled in the
// security config the listener serves HTTPS.
package metric
