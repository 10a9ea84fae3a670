// Package main implements the entry point for the API gateway.
// The gateway fronts configured backend services with API key
// authentication, per-client rate limiting, circuit breaking, payload
// normalization, and an asynchronous audit trail.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sania-talib/api-gateway-project/audit"
	"github.com/sania-talib/api-gateway-project/auth"
	"github.com/sania-talib/api-gateway-project/config"
	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/gateway"
	"github.com/sania-talib/api-gateway-project/health"
	"github.com/sania-talib/api-gateway-project/metric"
	"github.com/sania-talib/api-gateway-project/natsclient"
	"github.com/sania-talib/api-gateway-project/pkg/cache"
	"github.com/sania-talib/api-gateway-project/pkg/retry"
	"github.com/sania-talib/api-gateway-project/pkg/tlsutil"
	"github.com/sania-talib/api-gateway-project/ratelimit"
	"github.com/sania-talib/api-gateway-project/service"
	"github.com/sania-talib/api-gateway-project/store"
	"github.com/sania-talib/api-gateway-project/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "api-gateway"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	// Rebuild the logger from the effective config; the bootstrap logger
	// only covered flag parsing and config loading.
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// Setup core infrastructure
	ctx := context.Background()
	deps, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(ctx, time.Duration(cfg.Server.ShutdownTimeout))

	// Assemble the pipeline and its listener
	srv, err := buildGateway(cfg, deps, logger)
	if err != nil {
		return err
	}

	// Run application with signal handling
	return serve(ctx, cfg, deps, srv)
}

// initializeCLI parses flags and sets up the bootstrap logger
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printHelp()
		return nil, true, nil
	}

	slog.SetDefault(setupLogger(cliCfg.LogLevel, cliCfg.LogFormat))

	slog.Info("Starting API gateway",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// initializeConfiguration loads the config, applies CLI overrides, and
// validates the result
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyOverrides(cfg, cliCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// dependencies holds the infrastructure run() wires together. Fields are
// nil when the config does not enable them.
type dependencies struct {
	metrics         *metric.MetricsRegistry
	monitor         *health.Monitor
	store           *store.Store
	keys            auth.KeyStore
	natsKeys        *auth.NATSKeyStore
	keyCache        *auth.CachedStore
	limiter         ratelimit.Limiter
	redis           *redis.Client
	nats            *natsclient.Client
	upstream        *http.Client
	upstreamTLSStop func()
	pump            *audit.Pump
}

// setupInfrastructure builds the stores, limiter, NATS client, and audit
// pump. On failure everything already built is torn down.
func setupInfrastructure(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{
		metrics: metric.NewMetricsRegistry(),
	}
	deps.monitor = health.NewMonitor(health.WithStatusCallback(func(name string, healthy bool) {
		deps.metrics.CoreMetrics().RecordHealthStatus(name, healthy)
	}))

	// NATS comes up first: the natskv key store and the audit mirror
	// both bind to it.
	if err := setupNATS(ctx, cfg, deps, logger); err != nil {
		deps.close(ctx, time.Second)
		return nil, err
	}
	if err := setupKeyStore(ctx, cfg, deps, logger); err != nil {
		deps.close(ctx, time.Second)
		return nil, err
	}
	if err := setupLimiter(ctx, cfg, deps, logger); err != nil {
		deps.close(ctx, time.Second)
		return nil, err
	}
	if err := setupUpstreamClient(ctx, cfg, deps, logger); err != nil {
		deps.close(ctx, time.Second)
		return nil, err
	}
	if err := setupAuditPump(ctx, cfg, deps, logger); err != nil {
		deps.close(ctx, time.Second)
		return nil, err
	}

	return deps, nil
}

// setupKeyStore opens the configured key source. The libsql driver also
// migrates the schema and seeds the configured static keys; the natskv
// driver seeds them into its bucket; the memory driver serves the static
// keys directly.
func setupKeyStore(ctx context.Context, cfg *config.Config, deps *dependencies, logger *slog.Logger) error {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		deps.keys = auth.NewStaticKeys(cfg.Auth.StaticKeys...)
		deps.monitor.UpdateHealthy("store", "in-memory key set")
		logger.Info("key store ready", "driver", config.DriverMemory, "keys", len(cfg.Auth.StaticKeys))
	case config.DriverNATSKV:
		if deps.nats == nil {
			return fmt.Errorf("store driver %s requires a NATS connection", config.DriverNATSKV)
		}
		bucket, err := deps.nats.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.Store.Bucket,
			Description: "API key records",
		})
		if err != nil {
			return fmt.Errorf("provision key bucket: %w", err)
		}
		ks := auth.NewNATSKeyStore(deps.nats.NewKVStore(bucket))
		if err := seedKeyRecords(ctx, ks, cfg.Auth.StaticKeys); err != nil {
			return fmt.Errorf("seed api keys: %w", err)
		}
		deps.natsKeys = ks
		deps.keys = ks
		deps.monitor.UpdateHealthy("store", "key bucket reachable")
		logger.Info("key store ready", "driver", config.DriverNATSKV, "bucket", cfg.Store.Bucket)
	default:
		st, err := store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return fmt.Errorf("migrate store: %w", err)
		}
		if len(cfg.Auth.StaticKeys) > 0 {
			if err := st.SeedKeys(ctx, cfg.Auth.StaticKeys); err != nil {
				_ = st.Close()
				return fmt.Errorf("seed api keys: %w", err)
			}
		}
		deps.store = st
		deps.keys = st
		deps.monitor.UpdateHealthy("store", "database reachable")
		logger.Info("key store ready", "driver", cfg.Store.Driver)
	}

	if ttl := time.Duration(cfg.Auth.CacheTTL); ttl > 0 {
		cached, err := auth.NewCachedStore(ctx, deps.keys, ttl,
			cache.WithMetrics[bool](deps.metrics, "auth_keys"))
		if err != nil {
			return fmt.Errorf("create key cache: %w", err)
		}
		deps.keyCache = cached
		deps.keys = cached
		logger.Info("key verdict cache enabled", "ttl", ttl)

		// Revocations written to the bucket take effect at watch latency
		// instead of waiting out the verdict TTL.
		if deps.natsKeys != nil {
			go watchKeyInvalidation(ctx, deps.natsKeys, cached, logger)
		}
	}

	return nil
}

// seedKeyRecords provisions the bootstrap keys, treating already-present
// records as seeded rather than as a failure.
func seedKeyRecords(ctx context.Context, ks *auth.NATSKeyStore, keys []string) error {
	now := time.Now().UTC()
	for _, key := range keys {
		err := ks.Provision(ctx, auth.KeyRecord{Key: key, Active: true, CreatedAt: now})
		if err != nil && !errors.IsInvalid(err) {
			return err
		}
	}
	return nil
}

// watchKeyInvalidation keeps the bucket watcher alive, re-establishing it
// with backoff when the connection drops. If the watch cannot be held,
// revocation falls back to the cache TTL.
func watchKeyInvalidation(ctx context.Context, keys *auth.NATSKeyStore, inv auth.Invalidator, logger *slog.Logger) {
	policy := retry.Config{
		MaxAttempts:  10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
	err := retry.Do(ctx, policy, func() error {
		return keys.WatchInvalidate(ctx, inv)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("key invalidation watch abandoned, relying on cache TTL", "error", err)
	}
}

// setupLimiter builds the rate limiter backend. An unreachable redis only
// degrades health: the limiter itself fails open per request.
func setupLimiter(ctx context.Context, cfg *config.Config, deps *dependencies, logger *slog.Logger) error {
	limit := cfg.Gateway.RateLimitPerMinute

	if cfg.RateLimit.Backend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		deps.redis = client
		deps.limiter = ratelimit.NewRedis(client, limit, time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, rate limiting will fail open",
				"addr", cfg.RateLimit.Redis.Addr, "error", err)
			deps.monitor.UpdateDegraded("ratelimit", "redis unreachable")
		} else {
			deps.monitor.UpdateHealthy("ratelimit", "redis reachable")
		}
	} else {
		deps.limiter = ratelimit.NewMemory(limit, time.Minute)
		deps.monitor.UpdateHealthy("ratelimit", "in-memory sliding window")
	}

	logger.Info("rate limiter ready",
		"backend", cfg.RateLimit.Backend,
		"limit_per_minute", limit)
	return nil
}

// needsNATS reports whether any configured feature talks to NATS.
func needsNATS(cfg *config.Config) bool {
	if cfg.Audit.NATS.Enabled || cfg.Store.Driver == config.DriverNATSKV {
		return true
	}
	for _, svc := range cfg.Services {
		if svc.Type == config.ServiceTypeNATS {
			return true
		}
	}
	return false
}

// setupNATS connects to NATS when a service route or the audit mirror
// needs it, and waits for the connection to be ready.
func setupNATS(ctx context.Context, cfg *config.Config, deps *dependencies, logger *slog.Logger) error {
	if !needsNATS(cfg) {
		return nil
	}

	natsURL := "nats://127.0.0.1:4222"

	// Environment variable override takes precedence
	if envURL := os.Getenv("GATEWAY_NATS_URL"); envURL != "" {
		natsURL = envURL
	} else if cfg.Audit.NATS.URL != "" {
		natsURL = cfg.Audit.NATS.URL
	}

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMetrics(deps.metrics),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				deps.monitor.UpdateHealthy("nats", "connected")
			} else {
				deps.monitor.UpdateUnhealthy("nats", "connection lost")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS")
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	deps.nats = client
	deps.monitor.UpdateHealthy("nats", "connected")
	return nil
}

// setupUpstreamClient builds the shared outbound HTTP client for http
// service routes, carrying the client TLS section of the security
// config. Skipped when no route needs it.
func setupUpstreamClient(ctx context.Context, cfg *config.Config, deps *dependencies, logger *slog.Logger) error {
	needed := false
	for _, svc := range cfg.Services {
		if svc.Type == config.ServiceTypeHTTP {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	tlsConfig, tlsStop, err := tlsutil.LoadClientTLSConfigWithACME(ctx, cfg.Security.TLS.Client)
	if err != nil {
		return fmt.Errorf("load upstream TLS config: %w", err)
	}

	// No client-level timeout: each exchange is bounded by the route
	// timeout and the dispatch deadline.
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsConfig
	deps.upstream = &http.Client{Transport: tr}
	deps.upstreamTLSStop = tlsStop

	logger.Info("upstream HTTP client ready",
		"mtls", len(tlsConfig.Certificates) > 0)
	return nil
}

// setupAuditPump assembles the audit sinks and starts the delivery
// workers. Worker lifetime is bound to ctx, not the signal context, so a
// shutdown can still drain accepted records.
func setupAuditPump(ctx context.Context, cfg *config.Config, deps *dependencies, logger *slog.Logger) error {
	var sinks []audit.Sink
	if deps.store != nil {
		sinks = append(sinks, deps.store)
	}
	sinks = append(sinks, audit.NewSlogSink(logger))
	if cfg.Audit.NATS.Enabled {
		nsink := audit.NewNATSSink(deps.nats, cfg.Audit.NATS.Subject)
		if err := nsink.EnsureStream(ctx); err != nil {
			return fmt.Errorf("provision audit stream: %w", err)
		}
		sinks = append(sinks, nsink)
	}

	pump := audit.NewPump(audit.NewMultiSink(sinks...), cfg.Audit.Workers, cfg.Audit.QueueSize,
		audit.WithLogger(logger),
		audit.WithMetrics(deps.metrics))
	if err := pump.Start(ctx); err != nil {
		return fmt.Errorf("start audit pump: %w", err)
	}

	deps.pump = pump
	logger.Info("audit pump started",
		"sinks", len(sinks),
		"workers", cfg.Audit.Workers,
		"queue_size", cfg.Audit.QueueSize)
	return nil
}

// buildGateway wires the processor pipeline and wraps it in the public
// HTTP listener.
func buildGateway(cfg *config.Config, deps *dependencies, logger *slog.Logger) (*transport.Server, error) {
	var requester service.Requester
	if deps.nats != nil {
		requester = deps.nats
	}

	registry, err := service.FromConfig(cfg.Gateway, cfg.Services, requester, deps.upstream, logger)
	if err != nil {
		return nil, fmt.Errorf("build service registry: %w", err)
	}

	proc := gateway.NewProcessor(
		auth.NewGate(deps.keys),
		deps.limiter,
		registry,
		deps.pump,
		gateway.WithLogger(logger),
		gateway.WithMetrics(deps.metrics),
		gateway.WithDispatchTimeout(time.Duration(cfg.Gateway.DispatchTimeout)),
	)

	srv := transport.NewServer(
		cfg.Server.Addr,
		time.Duration(cfg.Server.ReadTimeout),
		time.Duration(cfg.Server.ShutdownTimeout),
		proc,
		transport.WithLogger(logger),
		transport.WithHealthMonitor(deps.monitor),
		transport.WithSecurity(cfg.Security),
	)

	logger.Info("gateway assembled",
		"services", registry.Names(),
		"rate_limit_per_minute", cfg.Gateway.RateLimitPerMinute,
		"failure_threshold", cfg.Gateway.FailureThreshold,
		"dispatch_timeout", cfg.Gateway.DispatchTimeout)
	return srv, nil
}

// serve runs the public and metrics listeners until a signal or a
// listener failure, then stops them in order.
func serve(ctx context.Context, cfg *config.Config, deps *dependencies, srv *transport.Server) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	var metricsServer *metric.Server
	if cfg.Server.MetricsAddr != "" {
		port, err := listenPort(cfg.Server.MetricsAddr)
		if err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", cfg.Server.MetricsAddr, err)
		}
		metricsServer = metric.NewServer(port, "/metrics", deps.metrics, cfg.Security)
	}

	g, gctx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		slog.Info("gateway listening", "addr", cfg.Server.Addr)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	if deps.store != nil {
		g.Go(func() error {
			probeStore(gctx, deps.store, deps.monitor)
			return nil
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsServer.Start(); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			slog.Error("gateway shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}
		return nil
	})

	slog.Info("API gateway started successfully")
	err := g.Wait()
	slog.Info("API gateway shutdown complete")
	return err
}

// probeStore refreshes store health on an interval so /health reflects
// database reachability after startup, not just at boot.
func probeStore(ctx context.Context, st *store.Store, monitor *health.Monitor) {
	const interval = 30 * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			monitor.Update("store", health.FromError("store", st.Ping(pctx)))
			cancel()
		}
	}
}

// close tears down infrastructure in reverse start order. Safe to call on
// a partially built set.
func (d *dependencies) close(ctx context.Context, timeout time.Duration) {
	if d.pump != nil {
		if err := d.pump.Stop(timeout); err != nil {
			slog.Warn("audit pump drain incomplete", "error", err)
		}
	}
	if d.upstreamTLSStop != nil {
		d.upstreamTLSStop()
	}
	if d.nats != nil {
		if err := d.nats.Close(ctx); err != nil {
			slog.Warn("NATS close failed", "error", err)
		}
	}
	if d.keyCache != nil {
		stats := d.keyCache.Stats()
		slog.Info("key verdict cache closed",
			"hits", stats.Hits(),
			"misses", stats.Misses(),
			"hit_ratio", stats.HitRatio(),
			"evictions", stats.Evictions(),
			"max_size", stats.MaxSize())
		_ = d.keyCache.Close()
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}
}

// listenPort extracts the TCP port from a listen address like ":9090".
func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

// printHelp prints help information
func printHelp() {
	printDetailedHelp()
}
