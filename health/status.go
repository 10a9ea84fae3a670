// Package health tracks component health for the gateway's /health
// endpoints: push-style updates from the wiring in cmd/gateway, an
// aggregate over all components, and sanitized failure messages.
package health

import (
	"regexp"
	"strings"
	"time"
)

// Patterns stripped from failure messages before they can reach a health
// endpoint. The gateway's error strings carry http, nats, redis, and
// libsql addresses, and libsql DSNs embed auth tokens.
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex     = regexp.MustCompile(`nats://[^\s]+`)
	redisURLRegex    = regexp.MustCompile(`rediss?://[^\s]+`)
	libsqlURLRegex   = regexp.MustCompile(`libsql://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health state of one component, or of the whole gateway
// when it carries SubStatuses.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the runtime counters the transport attaches to the
// aggregate status.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	RequestsProcessed int64         `json:"requests_processed,omitempty"`
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy reports whether the status is unhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// sanitizeErrorMessage strips addresses, paths, and credential-shaped
// fragments from an error string:
//
//   - URLs (http, https, nats, redis, rediss, libsql) become [URL]
//   - file paths (Unix and Windows) become [PATH]
//   - IPv4 addresses become [IP], bare ports [PORT]
//   - password/token/key/secret/credential assignments become [REDACTED]
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := err

	// URLs before paths: a URL contains a path.
	sanitized = httpURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = natsURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = redisURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = libsqlURLRegex.ReplaceAllString(sanitized, "[URL]")

	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")

	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "key") || strings.Contains(lower, "secret") ||
		strings.Contains(lower, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}

// FromError converts a probe result into a Status. A nil error maps to
// healthy; anything else maps to unhealthy with the message sanitized so
// connection strings, paths, and credentials never reach a health
// endpoint.
func FromError(name string, err error) Status {
	if err == nil {
		return NewHealthy(name, "component healthy")
	}
	return NewUnhealthy(name, sanitizeErrorMessage(err.Error()))
}
