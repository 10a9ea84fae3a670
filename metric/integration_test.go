package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// limiterMetrics mimics a component owning its own collectors, the way
// the worker pool and the key cache do.
type limiterMetrics struct {
	component string
	decisions prometheus.Counter
	tracked   prometheus.Gauge
}

func newLimiterMetrics(component string) *limiterMetrics {
	return &limiterMetrics{
		component: component,
		decisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "limiter",
			Name:      "decisions_total",
			Help:      "Total number of admission decisions",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "limiter",
			Name:      "tracked_clients",
			Help:      "Clients with a live sliding window",
		}),
	}
}

func (m *limiterMetrics) register(registrar MetricsRegistrar) error {
	if err := registrar.RegisterCounter(m.component, "decisions_total", m.decisions); err != nil {
		return err
	}
	return registrar.RegisterGauge(m.component, "tracked_clients", m.tracked)
}

func gatherNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestComponentMetricsRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	lm := newLimiterMetrics("ratelimit")
	require.NoError(t, lm.register(registry))

	lm.decisions.Add(10)
	lm.tracked.Set(5)

	names := gatherNames(t, registry)
	assert.True(t, names["gateway_limiter_decisions_total"])
	assert.True(t, names["gateway_limiter_tracked_clients"])
}

func TestComponentMetricsCoexistWithCore(t *testing.T) {
	registry := NewMetricsRegistry()

	core := registry.CoreMetrics()
	core.RecordRequest("users", 200)
	core.RecordRateLimited()

	lm := newLimiterMetrics("ratelimit")
	require.NoError(t, lm.register(registry))
	lm.decisions.Add(5)

	names := gatherNames(t, registry)
	assert.True(t, names["gateway_requests_total"])
	assert.True(t, names["gateway_rate_limited_total"])
	assert.True(t, names["gateway_limiter_decisions_total"])
}

func TestComponentMetricsDuplicateComponent(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, newLimiterMetrics("ratelimit").register(registry))

	err := newLimiterMetrics("ratelimit").register(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestComponentMetricsPrometheusNameConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, newLimiterMetrics("ratelimit").register(registry))

	// A fresh component name with identical prometheus metric names
	// still collides at the prometheus registry.
	err := newLimiterMetrics("ratelimit-shadow").register(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestComponentMetricsUnregistration(t *testing.T) {
	registry := NewMetricsRegistry()

	lm := newLimiterMetrics("ratelimit")
	require.NoError(t, lm.register(registry))
	lm.decisions.Add(1)
	lm.tracked.Set(1)

	names := gatherNames(t, registry)
	require.True(t, names["gateway_limiter_decisions_total"])

	assert.True(t, registry.Unregister("ratelimit", "decisions_total"))

	names = gatherNames(t, registry)
	assert.False(t, names["gateway_limiter_decisions_total"], "unregistered metric still exported")
	assert.True(t, names["gateway_limiter_tracked_clients"], "sibling metric lost")

	// A second unregister finds nothing.
	assert.False(t, registry.Unregister("ratelimit", "decisions_total"))
}
