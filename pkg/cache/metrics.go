package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sania-talib/api-gateway-project/metric"
)

// metricNames are the per-cache registration keys. They double as the
// unregistration list when the cache closes.
var metricNames = []string{
	"cache_hits", "cache_misses", "cache_sets",
	"cache_deletes", "cache_evictions", "cache_size",
}

// cacheMetrics exports one counter per cache operation plus a size
// gauge, all carrying the owning component as a const label so several
// caches can share one registry.
type cacheMetrics struct {
	registry *metric.MetricsRegistry
	prefix   string

	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheCounter(prefix, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "gateway",
		Subsystem:   "cache",
		Name:        name,
		ConstLabels: prometheus.Labels{"component": prefix},
		Help:        help,
	})
}

// newCacheMetrics builds the collectors and registers them under
// prefix. On a registration conflict it releases whatever it already
// registered before returning the error.
func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		registry:  registry,
		prefix:    prefix,
		hits:      newCacheCounter(prefix, "hits_total", "Total number of cache hits"),
		misses:    newCacheCounter(prefix, "misses_total", "Total number of cache misses"),
		sets:      newCacheCounter(prefix, "sets_total", "Total number of cache writes"),
		deletes:   newCacheCounter(prefix, "deletes_total", "Total number of cache deletes"),
		evictions: newCacheCounter(prefix, "evictions_total", "Total number of expired entries removed"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gateway",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of entries in the cache",
		}),
	}

	// Release only what this instance registered: a conflicting name
	// belongs to another cache and must stay registered.
	registered := make([]string, 0, len(metricNames))
	release := func() {
		for _, name := range registered {
			registry.Unregister(prefix, name)
		}
	}

	registrations := []struct {
		name    string
		counter prometheus.Counter
	}{
		{"cache_hits", m.hits},
		{"cache_misses", m.misses},
		{"cache_sets", m.sets},
		{"cache_deletes", m.deletes},
		{"cache_evictions", m.evictions},
	}
	for _, reg := range registrations {
		if err := registry.RegisterCounter(prefix, reg.name, reg.counter); err != nil {
			release()
			return nil, err
		}
		registered = append(registered, reg.name)
	}
	if err := registry.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		release()
		return nil, err
	}

	return m, nil
}

// unregister releases the collectors so a rebuilt cache under the same
// prefix can register fresh ones.
func (m *cacheMetrics) unregister() {
	for _, name := range metricNames {
		m.registry.Unregister(m.prefix, name)
	}
}

func (m *cacheMetrics) recordHit()  { m.hits.Inc() }
func (m *cacheMetrics) recordMiss() { m.misses.Inc() }
func (m *cacheMetrics) recordSet()  { m.sets.Inc() }

func (m *cacheMetrics) recordDelete()   { m.deletes.Inc() }
func (m *cacheMetrics) recordEviction() { m.evictions.Inc() }

func (m *cacheMetrics) updateSize(size int) { m.size.Set(float64(size)) }
