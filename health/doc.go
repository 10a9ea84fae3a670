// Package health tracks component health for the gateway's /health
// endpoint.
//
// # States
//
// A component is healthy, degraded, or unhealthy. Degraded means still
// serving with reduced capacity: the gateway reports a degraded rate
// limiter when redis is unreachable because admission fails open, while
// an unreachable database makes the store unhealthy.
//
// # Monitor
//
// Monitor holds the latest Status per component. The wiring in
// cmd/gateway pushes updates as infrastructure state changes, and the
// transport reads the aggregate on every /health request:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateHealthy("store", "database reachable")
//	monitor.UpdateDegraded("ratelimit", "redis unreachable")
//
//	status := monitor.AggregateHealth("api-gateway")
//
// Aggregation is worst-case: any unhealthy component marks the system
// unhealthy, otherwise any degraded component marks it degraded. All
// Monitor methods are safe for concurrent use.
//
// # Probes
//
// FromError converts a probe result into a Status:
//
//	monitor.Update("store", health.FromError("store", st.Ping(ctx)))
//
// Failure messages are sanitized before they can reach an endpoint:
// URLs (http, nats, redis, libsql), file paths, IP addresses, ports,
// and credential-shaped fragments are replaced with placeholders. There
// is no opt-out; raw error detail belongs in logs, not health output.
package health
