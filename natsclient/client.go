package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/metric"
)

// ConnectionStatus is the lifecycle state of the broker connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected      = stderrors.New("not connected to NATS")
	ErrCircuitOpen       = stderrors.New("circuit breaker is open")
	ErrConnectionTimeout = stderrors.New("connection timeout")
)

// Client owns the gateway's single NATS connection. It carries the three
// verbs the gateway needs from the broker: request/reply to service
// backends, JetStream publishes for the audit trail, and key-value bucket
// access for API key records. Repeated broker failures open a connection
// level circuit so callers fail fast instead of stacking dial attempts.
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger Logger

	conn *nats.Conn
	js   jetstream.JetStream

	// failures counts since the last healthy reset. circuitFailures counts
	// within the current breaker round and resets each time the threshold
	// trips.
	failures         atomic.Int32
	circuitFailures  atomic.Int32
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitThreshold int32
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Credential copies are wiped on Close.
	username string
	password string
	token    string

	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	clientName  string
	compression bool

	jsMetrics       *jetstreamMetrics
	coreMetrics     *metric.Metrics
	metricsCancel   context.CancelFunc
	metricsInterval time.Duration

	onDisconnect     func(error)
	onReconnect      func()
	onHealthChange   func(bool)
	onConnectionLost func(error)

	healthTicker   *time.Ticker
	healthInterval time.Duration
	healthDone     chan struct{}

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient builds an unconnected client for the given broker URL.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           &defaultLogger{},
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		healthInterval:   10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
		metricsInterval:  30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	c.logger.Debugf("NATS client created for %s", url)

	return c, nil
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// setStatus is the single funnel for state changes, so the connection
// gauge tracks every transition.
func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.coreMetrics != nil {
		c.coreMetrics.RecordNATSStatus(status == StatusConnected)
	}
}

// IsHealthy reports whether the connection is established and usable.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// recordFailure bumps the failure counters and opens the circuit once the
// threshold trips. The backoff doubles per round up to maxBackoff.
func (c *Client) recordFailure() {
	c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	if c.circuitFailures.Add(1) < c.circuitThreshold {
		return
	}
	c.circuitFailures.Store(0)

	wait := c.backoff.Load().(time.Duration)
	next := wait * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)

	cur := c.Status()
	if cur == StatusCircuitOpen {
		c.logger.Printf("NATS circuit still open, backoff now %v", next)
		return
	}

	// Only the goroutine that wins the swap schedules the probe.
	if c.status.CompareAndSwap(cur, StatusCircuitOpen) {
		c.logger.Printf("NATS circuit opened after %d failures, probing in %v", c.circuitThreshold, wait)
		time.AfterFunc(wait, c.probeCircuit)
	}
}

// resetCircuit clears failure state after a healthy operation.
func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// probeCircuit runs when the backoff window ends. Dropping back to
// disconnected lets the next Connect attempt through.
func (c *Client) probeCircuit() {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debugf("NATS circuit backoff elapsed, allowing reconnect")
		c.setStatus(StatusDisconnected)
	}
}

// WaitForConnection blocks until the connection is healthy or ctx ends.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnectionTimeout, ctx.Err())
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.compression {
		opts = append(opts, nats.Compression(true))
	}

	return opts
}

// Connect dials the broker. An open circuit short-circuits the attempt.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debugf("NATS circuit open, skipping connection attempt")
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("Connecting to NATS at %s", c.url)

	opts := c.buildConnectionOptions()

	// nats.Connect has no context parameter, so the dial runs in a
	// goroutine and the select below honors cancellation.
	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if js, err := jetstream.New(conn); err == nil {
			c.mu.Lock()
			c.js = js
			c.mu.Unlock()
		}

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			c.recordFailure()
			if c.Status() != StatusCircuitOpen {
				c.setStatus(StatusDisconnected)
			}
			if c.Status() == StatusCircuitOpen {
				return ErrCircuitOpen
			}
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		c.recordFailure()
		if c.Status() != StatusCircuitOpen {
			c.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()

	c.logger.Printf("Connected to NATS at %s", c.url)

	if c.healthInterval > 0 {
		c.startHealthMonitoring()
	}

	if c.jsMetrics != nil && c.metricsInterval > 0 {
		c.metricsCancel = c.jsMetrics.startPoller(context.Background(), c.metricsInterval)
	}

	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}

	return nil
}

// Close drains the connection and wipes credential copies. Safe to call
// more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	// Stop background work before taking the main lock. The health
	// goroutine takes c.mu itself.
	c.stopHealthMonitoring()
	if c.metricsCancel != nil {
		c.metricsCancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var drainErr error
	if c.conn != nil {
		// A ctx deadline shortens the configured drain window.
		drainTimeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() {
			drainDone <- c.conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
			}
		case <-time.After(drainTimeout):
			drainErr = errors.WrapTransient(
				fmt.Errorf("drain timed out after %v", drainTimeout),
				"Client", "Close", "drain connection")
			c.logger.Errorf("NATS drain timed out after %v, forcing close", drainTimeout)
		case <-ctx.Done():
			drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
			c.logger.Errorf("Context ended during NATS drain, forcing close")
		}

		c.conn.Close()
		c.conn = nil
	}

	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)

	return drainErr
}

// Request publishes data on subject and waits for a single reply. The
// deadline and cancellation come from ctx.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}

	return msg.Data, nil
}

func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "jetStream", "get JetStream context")
	}

	return c.js, nil
}

// CreateStream creates or looks up a JetStream stream and tracks it for
// metrics collection.
func (c *Client) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if c.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if c.Status() != StatusConnected {
		return nil, ErrNotConnected
	}

	js, err := c.jetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	stream, err := js.CreateStream(ctx, cfg)
	if err != nil {
		c.recordFailure()
		c.jsMetrics.recordError("create_stream")
		return nil, err
	}

	c.resetCircuit()
	c.jsMetrics.trackStream(cfg.Name, stream)

	return stream, nil
}

// PublishToStream publishes data to a JetStream subject and waits for the
// broker acknowledgment.
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	if c.Status() != StatusConnected {
		return ErrNotConnected
	}

	js, err := c.jetStream()
	if err != nil {
		c.recordFailure()
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		c.recordFailure()
		c.jsMetrics.recordError("publish")
		return err
	}

	c.resetCircuit()
	return nil
}

// CreateKeyValueBucket returns the named KV bucket, creating it when it
// does not exist yet. Two processes racing to create the same bucket both
// end up with a handle to it.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	if c.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if c.Status() != StatusConnected {
		return nil, ErrNotConnected
	}

	js, err := c.jetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		c.logger.Debugf("Using existing KV bucket %s", cfg.Bucket)
		c.resetCircuit()
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if isAlreadyExistsError(err) {
			// Lost the creation race. The bucket exists now, fetch it.
			bucket, err = js.KeyValue(ctx, cfg.Bucket)
			if err != nil {
				c.recordFailure()
				return nil, errors.Wrap(err, "Client", "CreateKeyValueBucket",
					fmt.Sprintf("access existing bucket %s", cfg.Bucket))
			}
			c.resetCircuit()
			return bucket, nil
		}
		c.recordFailure()
		return nil, err
	}

	c.logger.Printf("Created KV bucket %s", cfg.Bucket)
	c.resetCircuit()
	return bucket, nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	onHealthChange := c.onHealthChange
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
	if onHealthChange != nil {
		go onHealthChange(false)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	if c.coreMetrics != nil {
		c.coreMetrics.RecordNATSReconnect()
	}

	c.mu.RLock()
	onReconnect := c.onReconnect
	onHealthChange := c.onHealthChange
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
	if onHealthChange != nil {
		go onHealthChange(true)
	}
}

func (c *Client) handleClosed(conn *nats.Conn) {
	c.setStatus(StatusDisconnected)

	c.mu.RLock()
	onHealthChange := c.onHealthChange
	onConnectionLost := c.onConnectionLost
	c.mu.RUnlock()

	if onHealthChange != nil {
		go onHealthChange(false)
	}
	// ClosedHandler fires once reconnect attempts are exhausted, which is
	// the terminal loss signal.
	if onConnectionLost != nil {
		go onConnectionLost(conn.LastError())
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	// Async errors include slow-consumer and permission notices that are
	// not connection failures, so no failure is recorded here.
	c.logger.Errorf("NATS error: %v", err)
}

// startHealthMonitoring checks the connection on a timer and pushes state
// changes through onHealthChange.
func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	c.mu.Lock()
	c.healthTicker = time.NewTicker(c.healthInterval)
	c.healthDone = make(chan struct{})
	ticker := c.healthTicker
	done := c.healthDone
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		lastHealthy := c.IsHealthy()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.RLock()
				conn := c.conn
				c.mu.RUnlock()

				if conn == nil {
					continue
				}

				healthy := conn.IsConnected()
				if rtt, err := conn.RTT(); err != nil {
					healthy = false
				} else if c.coreMetrics != nil {
					c.coreMetrics.RecordNATSRTT(rtt)
				}

				if healthy && c.Status() != StatusConnected {
					c.setStatus(StatusConnected)
				} else if !healthy && c.Status() == StatusConnected {
					c.setStatus(StatusReconnecting)
				}

				if healthy != lastHealthy && c.onHealthChange != nil {
					c.onHealthChange(healthy)
				}

				lastHealthy = healthy
			}
		}
	}()
}

func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthTicker != nil {
		c.healthTicker.Stop()
		c.healthTicker = nil
	}
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}

// isAlreadyExistsError matches the strings JetStream returns when a bucket
// or its backing stream already exists.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "bucket name already in use") ||
		strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "stream name already in use")
}
