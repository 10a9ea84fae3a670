package health

import (
	"errors"
	"testing"
	"time"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{"healthy", NewHealthy("store", "ok"), true, false, false},
		{"degraded", NewDegraded("ratelimit", "redis unreachable"), false, true, false},
		{"unhealthy", NewUnhealthy("nats", "connection lost"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsHealthy(); got != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.healthy)
			}
			if got := tt.status.IsDegraded(); got != tt.degraded {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.degraded)
			}
			if got := tt.status.IsUnhealthy(); got != tt.unhealthy {
				t.Errorf("IsUnhealthy() = %v, want %v", got, tt.unhealthy)
			}
		})
	}
}

func TestStatusWithMetrics(t *testing.T) {
	base := NewHealthy("api-gateway", "all components healthy")

	got := base.WithMetrics(&Metrics{Uptime: time.Minute, RequestsProcessed: 42})

	if base.Metrics != nil {
		t.Error("WithMetrics mutated the receiver")
	}
	if got.Metrics == nil || got.Metrics.Uptime != time.Minute || got.Metrics.RequestsProcessed != 42 {
		t.Errorf("Metrics = %+v, want uptime 1m and 42 requests", got.Metrics)
	}
}

func TestFromError(t *testing.T) {
	t.Run("nil error is healthy", func(t *testing.T) {
		got := FromError("store", nil)
		if !got.IsHealthy() {
			t.Errorf("status = %q, want healthy", got.Status)
		}
		if got.Component != "store" {
			t.Errorf("component = %q, want store", got.Component)
		}
	})

	t.Run("error is unhealthy and sanitized", func(t *testing.T) {
		err := errors.New("dial tcp 10.0.0.5:8443: connect: connection refused")

		got := FromError("store", err)

		if !got.IsUnhealthy() {
			t.Errorf("status = %q, want unhealthy", got.Status)
		}
		want := "dial tcp [IP][PORT]: connect: connection refused"
		if got.Message != want {
			t.Errorf("message = %q, want %q", got.Message, want)
		}
	})
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain message untouched",
			in:   "connection reset by peer",
			want: "connection reset by peer",
		},
		{
			name: "nats url",
			in:   "connect to nats://gateway:4222 failed",
			want: "connect to [URL] failed",
		},
		{
			name: "libsql dsn with auth token",
			in:   "ping libsql://gateway-prod.turso.io?authToken=abc123 timed out",
			want: "ping [URL] timed out",
		},
		{
			name: "redis url",
			in:   "dial redis://10.0.0.5:6379 refused",
			want: "dial [URL] refused",
		},
		{
			name: "bare address",
			in:   "dial tcp 192.168.1.50:6379: connection refused",
			want: "dial tcp [IP][PORT]: connection refused",
		},
		{
			name: "unix path",
			in:   "open /var/lib/gateway/keys.db: permission denied",
			want: "open [PATH]: permission denied",
		},
		{
			name: "windows path",
			in:   `open C:\gateway\keys.db denied`,
			want: "open [PATH] denied",
		},
		{
			name: "password assignment",
			in:   "auth failed: password=hunter2 rejected",
			want: "auth failed: [REDACTED] rejected",
		},
		{
			name: "token assignment",
			in:   "store handshake failed: token=se3cret expired",
			want: "store handshake failed: [REDACTED] expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeErrorMessage(tt.in); got != tt.want {
				t.Errorf("sanitizeErrorMessage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
