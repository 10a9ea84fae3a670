package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/pkg/security"
)

// Rate limit and circuit breaker defaults match the gateway package.
const (
	DefaultAddr            = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultReadTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultRateLimitPerMinute = 10
	DefaultFailureThreshold   = 3
	DefaultResetTimeout       = 10 * time.Second
	DefaultDispatchTimeout    = 5 * time.Second

	DefaultAuditQueueSize = 1024
	DefaultAuditWorkers   = 2
	DefaultAuditSubject   = "gateway.audit.v1"

	DefaultStoreDSN  = "file:gateway.db"
	DefaultKeyBucket = "api_keys"
)

// Rate limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store drivers.
const (
	DriverLibSQL = "libsql"
	DriverMemory = "memory"
	DriverNATSKV = "natskv"
)

// Service handler types.
const (
	ServiceTypeMockUsers    = "mock-users"
	ServiceTypeMockProducts = "mock-products"
	ServiceTypeNATS         = "nats"
	ServiceTypeHTTP         = "http"
)

// Duration is a time.Duration that unmarshals from Go duration strings
// ("10s", "1m30s") or integer nanoseconds, in both JSON and YAML.
type Duration time.Duration

// String returns the standard duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON renders the duration in string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or numeric nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration type %T", raw)
	}
	return nil
}

// MarshalYAML renders the duration in string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `json:"ratelimit" yaml:"ratelimit"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
	Security  security.Config `json:"security,omitempty" yaml:"security,omitempty"`
	Services  []ServiceConfig `json:"services" yaml:"services"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the gateway listen address.
	Addr string `json:"addr" yaml:"addr"`
	// MetricsAddr serves Prometheus metrics and health probes.
	// Empty disables the listener.
	MetricsAddr     string   `json:"metrics_addr" yaml:"metrics_addr"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// GatewayConfig holds the request pipeline settings.
type GatewayConfig struct {
	RateLimitPerMinute int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	FailureThreshold   int      `json:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeout       Duration `json:"reset_timeout" yaml:"reset_timeout"`
	DispatchTimeout    Duration `json:"dispatch_timeout" yaml:"dispatch_timeout"`
}

// AuthConfig holds API key verification settings.
type AuthConfig struct {
	// CacheTTL enables verdict caching in front of the key store when
	// positive. Zero disables the cache.
	CacheTTL Duration `json:"cache_ttl" yaml:"cache_ttl"`
	// StaticKeys are bootstrap keys. With the memory store driver they
	// form the whole key set; the libsql and natskv drivers seed them
	// into the key store at startup.
	StaticKeys []string `json:"static_keys" yaml:"static_keys"`
}

// RateLimitConfig selects the rate limiter backend.
type RateLimitConfig struct {
	Backend string      `json:"backend" yaml:"backend"`
	Redis   RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig holds redis connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
	// AuthToken is appended to remote libsql DSNs. Usually supplied via
	// GATEWAY_STORE_AUTH_TOKEN rather than a config file.
	AuthToken string `json:"auth_token,omitempty" yaml:"auth_token,omitempty"`
	// Bucket names the JetStream KV bucket holding key records for the
	// natskv driver.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
}

// AuditConfig holds async audit pump settings.
type AuditConfig struct {
	QueueSize int             `json:"queue_size" yaml:"queue_size"`
	Workers   int             `json:"workers" yaml:"workers"`
	NATS      AuditNATSConfig `json:"nats" yaml:"nats"`
}

// AuditNATSConfig mirrors audit records onto a JetStream subject.
type AuditNATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

// ServiceConfig declares one routable backend service.
type ServiceConfig struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	// FailureRate applies to mock handlers only, range [0, 1].
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"`
	// Subject is the NATS request subject, required for type "nats".
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	// URL is the upstream base URL, required for type "http".
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Timeout overrides the gateway dispatch timeout for this service.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Default returns the built-in configuration. It routes the two mock
// services the gateway ships with and persists to a local libsql file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			MetricsAddr:     DefaultMetricsAddr,
			ReadTimeout:     Duration(DefaultReadTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Gateway: GatewayConfig{
			RateLimitPerMinute: DefaultRateLimitPerMinute,
			FailureThreshold:   DefaultFailureThreshold,
			ResetTimeout:       Duration(DefaultResetTimeout),
			DispatchTimeout:    Duration(DefaultDispatchTimeout),
		},
		RateLimit: RateLimitConfig{
			Backend: BackendMemory,
		},
		Store: StoreConfig{
			Driver: DriverLibSQL,
			DSN:    DefaultStoreDSN,
		},
		Audit: AuditConfig{
			QueueSize: DefaultAuditQueueSize,
			Workers:   DefaultAuditWorkers,
			NATS: AuditNATSConfig{
				Subject: DefaultAuditSubject,
			},
		},
		Services: []ServiceConfig{
			{Name: "users", Type: ServiceTypeMockUsers, FailureRate: 0.1},
			{Name: "products", Type: ServiceTypeMockProducts, FailureRate: 0.1},
		},
	}
}

// invalidf builds a classified validation error naming the bad field.
func invalidf(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf(format, args...),
		"Config", "Validate", "validate configuration")
}

// Validate normalizes enumerated fields and checks every section.
// The first problem found is returned as an Invalid error naming the
// field.
func (c *Config) Validate() error {
	c.normalize()

	if c.Server.Addr == "" {
		return invalidf("server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		return invalidf("server.read_timeout must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalidf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalidf("logging.level must be one of debug, info, warn, error: got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return invalidf("logging.format must be json or text: got %q", c.Logging.Format)
	}

	if c.Gateway.RateLimitPerMinute <= 0 {
		return invalidf("gateway.rate_limit_per_minute must be positive, got %d", c.Gateway.RateLimitPerMinute)
	}
	if c.Gateway.FailureThreshold <= 0 {
		return invalidf("gateway.failure_threshold must be positive, got %d", c.Gateway.FailureThreshold)
	}
	if c.Gateway.ResetTimeout <= 0 {
		return invalidf("gateway.reset_timeout must be positive, got %s", c.Gateway.ResetTimeout)
	}
	if c.Gateway.DispatchTimeout <= 0 {
		return invalidf("gateway.dispatch_timeout must be positive, got %s", c.Gateway.DispatchTimeout)
	}

	if c.Auth.CacheTTL < 0 {
		return invalidf("auth.cache_ttl cannot be negative, got %s", c.Auth.CacheTTL)
	}
	for _, key := range c.Auth.StaticKeys {
		if key == "" {
			return invalidf("auth.static_keys cannot contain empty keys")
		}
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RateLimit.Redis.Addr == "" {
			return invalidf("ratelimit.redis.addr is required for the redis backend")
		}
	default:
		return invalidf("ratelimit.backend must be %s or %s: got %q", BackendMemory, BackendRedis, c.RateLimit.Backend)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverLibSQL:
		if c.Store.DSN == "" {
			return invalidf("store.dsn is required for the libsql driver")
		}
	case DriverNATSKV:
		if !isValidName(c.Store.Bucket) {
			return invalidf("store.bucket %q must be alphanumeric with dashes or underscores", c.Store.Bucket)
		}
	default:
		return invalidf("store.driver must be %s, %s, or %s: got %q",
			DriverLibSQL, DriverMemory, DriverNATSKV, c.Store.Driver)
	}

	if c.Audit.QueueSize <= 0 {
		return invalidf("audit.queue_size must be positive, got %d", c.Audit.QueueSize)
	}
	if c.Audit.Workers <= 0 {
		return invalidf("audit.workers must be positive, got %d", c.Audit.Workers)
	}
	if c.Audit.NATS.Enabled {
		if c.Audit.NATS.URL == "" {
			return invalidf("audit.nats.url is required when audit.nats.enabled")
		}
		if c.Audit.NATS.Subject == "" {
			return invalidf("audit.nats.subject is required when audit.nats.enabled")
		}
	}

	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.Name == "" {
			return invalidf("services[%d].name is required", i)
		}
		if !isValidName(svc.Name) {
			return invalidf("services[%d].name %q must be alphanumeric with dashes or underscores", i, svc.Name)
		}
		if seen[svc.Name] {
			return invalidf("services[%d].name %q is duplicated", i, svc.Name)
		}
		seen[svc.Name] = true

		switch svc.Type {
		case ServiceTypeMockUsers, ServiceTypeMockProducts:
			if svc.FailureRate < 0 || svc.FailureRate > 1 {
				return invalidf("services[%d].failure_rate must be within [0, 1], got %g", i, svc.FailureRate)
			}
		case ServiceTypeNATS:
			if svc.Subject == "" {
				return invalidf("services[%d].subject is required for type %s", i, ServiceTypeNATS)
			}
		case ServiceTypeHTTP:
			u, err := url.Parse(svc.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return invalidf("services[%d].url must be an absolute http(s) URL for type %s, got %q",
					i, ServiceTypeHTTP, svc.URL)
			}
		default:
			return invalidf("services[%d].type must be one of %s, %s, %s, %s: got %q",
				i, ServiceTypeMockUsers, ServiceTypeMockProducts, ServiceTypeNATS, ServiceTypeHTTP, svc.Type)
		}
		if svc.Timeout < 0 {
			return invalidf("services[%d].timeout cannot be negative, got %s", i, svc.Timeout)
		}
	}

	return nil
}

// normalize lowercases enumerated fields so config files can use any
// casing. Service names are lowercased because route matching is exact.
func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.RateLimit.Backend = strings.ToLower(strings.TrimSpace(c.RateLimit.Backend))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Store.Bucket = strings.TrimSpace(c.Store.Bucket)
	if c.Store.Driver == DriverNATSKV && c.Store.Bucket == "" {
		c.Store.Bucket = DefaultKeyBucket
	}
	for i := range c.Services {
		c.Services[i].Name = strings.ToLower(strings.TrimSpace(c.Services[i].Name))
		c.Services[i].Type = strings.ToLower(strings.TrimSpace(c.Services[i].Type))
	}
}

// isValidName checks that a name is safe as a URL path segment or a KV
// bucket name. Valid characters are alphanumeric, dashes, and
// underscores.
func isValidName(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
