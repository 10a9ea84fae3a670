package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sania-talib/api-gateway-project/errors"
)

// Loader builds the effective configuration from layers: built-in
// defaults, then config files in the order added, then environment
// overrides. Later layers win.
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a loader with the GATEWAY environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "GATEWAY"}
}

// AddLayer adds a configuration file layer. Fields absent from the file
// keep their values from earlier layers.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Load merges all layers, applies environment overrides, and validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := mergeFile(&cfg, path); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("failed to load %s: %w", path, err),
				"config.Loader", "Load", "read config layer")
		}
	}

	l.applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a single configuration file over the defaults. An empty
// path yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.AddLayer(path)
	}
	return l.Load()
}

// mergeFile decodes a config file over cfg in place. The format follows
// the file extension: .yaml/.yml use YAML, .json uses JSON.
func mergeFile(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := l.getenv("SERVER_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
	if val := l.getenv("METRICS_ADDR"); val != "" {
		cfg.Server.MetricsAddr = val
	}
	if val := l.getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := l.getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := l.getenv("RATELIMIT_BACKEND"); val != "" {
		cfg.RateLimit.Backend = val
	}
	if val := l.getenv("REDIS_ADDR"); val != "" {
		cfg.RateLimit.Redis.Addr = val
	}
	if val := l.getenv("REDIS_PASSWORD"); val != "" {
		cfg.RateLimit.Redis.Password = val
	}
	if val := l.getenv("REDIS_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.Redis.DB = n
		}
	}
	if val := l.getenv("STORE_DRIVER"); val != "" {
		cfg.Store.Driver = val
	}
	if val := l.getenv("STORE_DSN"); val != "" {
		cfg.Store.DSN = val
	}
	if val := l.getenv("STORE_AUTH_TOKEN"); val != "" {
		cfg.Store.AuthToken = val
	}
	if val := l.getenv("STORE_BUCKET"); val != "" {
		cfg.Store.Bucket = val
	}
	if val := l.getenv("STATIC_KEYS"); val != "" {
		cfg.Auth.StaticKeys = strings.Split(val, ",")
	}
	if val := l.getenv("AUDIT_NATS_URL"); val != "" {
		cfg.Audit.NATS.URL = val
		cfg.Audit.NATS.Enabled = true
	}
}

// getenv reads a prefixed environment variable. Values that fail basic
// validation are treated as unset.
func (l *Loader) getenv(name string) string {
	key := l.envPrefix + "_" + name
	val := os.Getenv(key)
	if val == "" {
		return ""
	}
	if err := validateEnvVar(key, val); err != nil {
		return ""
	}
	return val
}
