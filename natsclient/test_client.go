package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testNATSImage      = "nats:2.11.7-alpine"
	testConnectTimeout = 5 * time.Second
	testStartTimeout   = 30 * time.Second
)

// TestClient runs a disposable NATS server in a container and holds a
// connected Client. Cleanup is registered on the test automatically.
type TestClient struct {
	container testcontainers.Container
	Client    *Client
	URL       string
	cleanup   func()
}

type testConfig struct {
	jetstream bool
	kvBuckets []string
}

// TestOption configures the test server before it starts.
type TestOption func(*testConfig)

// WithJetStream starts the server with JetStream enabled.
func WithJetStream() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
	}
}

// WithKV enables JetStream for tests that create KV buckets themselves.
func WithKV() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
	}
}

// WithKVBuckets enables JetStream and pre-creates the named buckets.
func WithKVBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
		cfg.kvBuckets = append(cfg.kvBuckets, buckets...)
	}
}

// NewTestClient starts a NATS container and returns a connected client.
// Takes testing.TB so it serves both tests and benchmarks.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	tc, err := startTestClient(cfg)
	if err != nil {
		t.Fatalf("start NATS test client: %v", err)
	}

	t.Cleanup(tc.cleanup)
	return tc
}

func startTestClient(cfg *testConfig) (*TestClient, error) {
	ctx := context.Background()

	args := []string{
		"--port", "4222",
		"--http_port", "8222",
	}
	if cfg.jetstream {
		args = append(args, "--js")
	}

	req := testcontainers.ContainerRequest{
		Image:        testNATSImage,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          args,
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(testStartTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("mapped port: %w", err)
	}

	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	// Reconnects and the health probe stay off so connection tests see
	// only the transitions they cause.
	client, err := NewClient(url,
		WithTimeout(testConnectTimeout),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("create client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, testConnectTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.WaitForConnection(connectCtx); err != nil {
		_ = client.Close(ctx)
		container.Terminate(ctx)
		return nil, fmt.Errorf("connection not ready: %w", err)
	}

	tc := &TestClient{
		container: container,
		Client:    client,
		URL:       url,
		cleanup: func() {
			_ = client.Close(context.Background())
			_ = container.Terminate(context.Background())
		},
	}

	for _, bucket := range cfg.kvBuckets {
		if _, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: bucket}); err != nil {
			tc.cleanup()
			return nil, fmt.Errorf("create KV bucket %s: %w", bucket, err)
		}
	}

	return tc, nil
}

// Terminate tears the container down early. Normally t.Cleanup handles it.
func (tc *TestClient) Terminate() error {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
	return nil
}
