package audit

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/metric"
	"github.com/sania-talib/api-gateway-project/pkg/retry"
	"github.com/sania-talib/api-gateway-project/pkg/worker"
)

// Pump defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 1024
)

// Pump is the Sink the processor holds: a bounded queue in front of the
// real sink so audit delivery never stalls the response path. Accepted
// records are delivered by a worker pool with a small capped retry on
// transient failures; a full queue drops the record and accounts for it.
type Pump struct {
	sink     Sink
	pool     *worker.Pool[Record]
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *metric.MetricsRegistry
	dropWarn *rate.Limiter
	retryCfg retry.Config
}

// PumpOption configures a Pump.
type PumpOption func(*Pump)

// WithLogger sets the logger for drop warnings and delivery failures.
func WithLogger(logger *slog.Logger) PumpOption {
	return func(p *Pump) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics wires drop/failure counters and exports the worker pool's
// own gauges under the gateway_audit_pool prefix.
func WithMetrics(registry *metric.MetricsRegistry) PumpOption {
	return func(p *Pump) {
		if registry != nil {
			p.registry = registry
			p.metrics = registry.CoreMetrics()
		}
	}
}

// WithRetryConfig overrides the delivery retry policy.
func WithRetryConfig(cfg retry.Config) PumpOption {
	return func(p *Pump) { p.retryCfg = cfg }
}

// NewPump builds a pump delivering to sink. Non-positive workers or
// queueSize fall back to the defaults.
func NewPump(sink Sink, workers, queueSize int, opts ...PumpOption) *Pump {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p := &Pump{
		sink:     sink,
		logger:   slog.Default(),
		dropWarn: rate.NewLimiter(rate.Every(10*time.Second), 1),
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	var poolOpts []worker.Option[Record]
	if p.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[Record](p.registry, "gateway_audit_pool"))
	}
	p.pool = worker.NewPool(workers, queueSize, p.deliver, poolOpts...)

	return p
}

// Start launches the delivery workers. Their lifetime is bound to ctx.
func (p *Pump) Start(ctx context.Context) error {
	return p.pool.Start(ctx)
}

// Stop closes the queue and waits up to timeout for accepted records to
// drain.
func (p *Pump) Stop(timeout time.Duration) error {
	return p.pool.Stop(timeout)
}

// Write enqueues the record and returns immediately. The client-visible
// outcome is already decided by the time a record exists, so Write never
// surfaces an error: a full queue (or a stopped pump during shutdown)
// drops the record, bumps the drop counter, and warns at a rate-limited
// cadence.
func (p *Pump) Write(_ context.Context, rec Record) error {
	err := p.pool.Submit(rec)
	if err == nil {
		return nil
	}

	if p.metrics != nil {
		p.metrics.RecordAuditDropped()
	}
	if p.dropWarn.Allow() {
		if stderrors.Is(err, worker.ErrQueueFull) {
			p.logger.Warn("audit queue full, dropping records",
				"dropped_total", p.pool.Stats().Dropped)
		} else {
			p.logger.Warn("audit pump not accepting records",
				"error", err)
		}
	}
	return nil
}

// Stats exposes the underlying pool counters.
func (p *Pump) Stats() worker.PoolStats {
	return p.pool.Stats()
}

// deliver writes one record to the wrapped sink, retrying transient
// failures with capped backoff. Exhausted or non-retryable failures are
// counted and logged, never re-raised to the caller of Write.
func (p *Pump) deliver(ctx context.Context, rec Record) error {
	err := retry.Do(ctx, p.retryCfg, func() error {
		werr := p.sink.Write(ctx, rec)
		if werr != nil && !errors.IsTransient(werr) {
			return retry.NonRetryable(werr)
		}
		return werr
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordAuditFailure()
		}
		p.logger.Error("audit record delivery failed",
			"endpoint", rec.Endpoint,
			"method", rec.Method,
			"status", rec.Status,
			"error", err)
	}
	return err
}
