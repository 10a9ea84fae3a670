//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	gonats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sania-talib/api-gateway-project/metric"
)

func TestIntegration_ConnectAndClose(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	assert.True(t, tc.Client.IsHealthy())
	assert.Equal(t, StatusConnected, tc.Client.Status())

	require.NoError(t, tc.Client.Close(ctx))
	assert.Equal(t, StatusDisconnected, tc.Client.Status())

	_, err := tc.Client.Request(ctx, "svc.users", []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestIntegration_RequestReply(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	// A raw connection stands in for a service backend answering on its
	// subject.
	backend, err := gonats.Connect(tc.URL)
	require.NoError(t, err)
	defer backend.Close()

	_, err = backend.Subscribe("svc.users", func(msg *gonats.Msg) {
		_ = msg.Respond([]byte(`{"status":200,"body":{"users":[]}}`))
	})
	require.NoError(t, err)
	require.NoError(t, backend.Flush())

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	reply, err := tc.Client.Request(reqCtx, "svc.users", []byte(`{"method":"GET"}`))
	require.NoError(t, err)
	assert.Contains(t, string(reply), `"status":200`)
}

func TestIntegration_RequestWithoutResponder(t *testing.T) {
	tc := NewTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := tc.Client.Request(ctx, "svc.nothing-listens-here", []byte("{}"))
	require.Error(t, err)
}

func TestIntegration_AuditStreamPublish(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	cfg := jetstream.StreamConfig{
		Name:     "GATEWAY_AUDIT",
		Subjects: []string{"gateway.audit.>"},
		Storage:  jetstream.MemoryStorage,
	}

	stream, err := tc.Client.CreateStream(ctx, cfg)
	require.NoError(t, err)

	// Re-creating with the same config returns the existing stream.
	_, err = tc.Client.CreateStream(ctx, cfg)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		record := fmt.Sprintf(`{"endpoint":"users","status_code":200,"seq":%d}`, i)
		require.NoError(t, tc.Client.PublishToStream(ctx, "gateway.audit.v1", []byte(record)))
	}

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.State.Msgs)
}

func TestIntegration_PublishToUnroutedSubject(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// No stream claims this subject, so the publish gets no ack.
	err := tc.Client.PublishToStream(ctx, "unrouted.subject", []byte("{}"))
	require.Error(t, err)
	assert.GreaterOrEqual(t, tc.Client.failures.Load(), int32(1))
}

func TestIntegration_HealthCallbackOnConnect(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	healthy := make(chan bool, 4)
	client, err := NewClient(tc.URL,
		WithName("api-gateway-test"),
		WithMaxReconnects(0),
		WithHealthInterval(0),
		WithHealthChangeCallback(func(h bool) { healthy <- h }),
	)
	require.NoError(t, err)

	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	select {
	case h := <-healthy:
		assert.True(t, h)
	case <-time.After(time.Second):
		t.Fatal("no health callback after connect")
	}
}

func TestIntegration_StreamMetricsPolled(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	registry := metric.NewMetricsRegistry()
	client, err := NewClient(tc.URL,
		WithMetrics(registry),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	_, err = client.CreateStream(ctx, jetstream.StreamConfig{
		Name:     "GATEWAY_AUDIT",
		Subjects: []string{"gateway.audit.>"},
		Storage:  jetstream.MemoryStorage,
	})
	require.NoError(t, err)

	require.NoError(t, client.PublishToStream(ctx, "gateway.audit.v1", []byte(`{}`)))
	require.NoError(t, client.PublishToStream(ctx, "gateway.audit.v1", []byte(`{}`)))

	client.jsMetrics.updateStats(ctx)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var got float64 = -1
	for _, mf := range families {
		if mf.GetName() != "gateway_jetstream_stream_messages" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m, "stream", "GATEWAY_AUDIT") {
				got = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), got)
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, l := range m.GetLabel() {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
