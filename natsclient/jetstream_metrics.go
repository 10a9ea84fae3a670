package natsclient

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sania-talib/api-gateway-project/metric"
)

// jetstreamMetrics exposes state for the streams this client creates,
// which for the gateway is the audit stream. The client only publishes,
// so there are no consumer-side series.
type jetstreamMetrics struct {
	streamMessages *prometheus.GaugeVec // message count per stream
	streamBytes    *prometheus.GaugeVec // stored bytes per stream
	streamState    *prometheus.GaugeVec // 1 reachable, 0 unreachable

	errors *prometheus.CounterVec // failed JetStream operations by verb

	mu      sync.RWMutex
	streams map[string]jetstream.Stream
}

func newJetStreamMetrics(registry *metric.MetricsRegistry) (*jetstreamMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &jetstreamMetrics{
		streamMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "jetstream",
			Name:      "stream_messages",
			Help:      "Current number of messages in stream",
		}, []string{"stream"}),

		streamBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "jetstream",
			Name:      "stream_bytes",
			Help:      "Storage bytes used by stream",
		}, []string{"stream"}),

		streamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "jetstream",
			Name:      "stream_state",
			Help:      "Stream state (1=active, 0=inactive)",
		}, []string{"stream"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "jetstream",
			Name:      "operation_errors_total",
			Help:      "Total number of JetStream operation errors",
		}, []string{"operation"}),

		streams: make(map[string]jetstream.Stream),
	}

	if err := registry.RegisterGaugeVec("jetstream", "stream_messages", m.streamMessages); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "stream_bytes", m.streamBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "stream_state", m.streamState); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("jetstream", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

// trackStream registers a stream for the stats poller. Nil receivers are
// tolerated so callers never guard on metrics being enabled.
func (m *jetstreamMetrics) trackStream(name string, stream jetstream.Stream) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[name] = stream
	m.streamState.WithLabelValues(name).Set(1)
}

func (m *jetstreamMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

// updateStats refreshes the gauges for every tracked stream. A stream
// that cannot report is marked inactive rather than failing the poll.
func (m *jetstreamMetrics) updateStats(ctx context.Context) {
	if m == nil {
		return
	}

	m.mu.RLock()
	streams := make(map[string]jetstream.Stream, len(m.streams))
	for k, v := range m.streams {
		streams[k] = v
	}
	m.mu.RUnlock()

	for name, stream := range streams {
		info, err := stream.Info(ctx)
		if err != nil {
			m.streamState.WithLabelValues(name).Set(0)
			continue
		}

		m.streamMessages.WithLabelValues(name).Set(float64(info.State.Msgs))
		m.streamBytes.WithLabelValues(name).Set(float64(info.State.Bytes))
		m.streamState.WithLabelValues(name).Set(1)
	}
}

// startPoller refreshes stream stats on a fixed interval until the
// returned cancel func runs.
func (m *jetstreamMetrics) startPoller(ctx context.Context, interval time.Duration) context.CancelFunc {
	if m == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.updateStats(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
