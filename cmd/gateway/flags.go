package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sania-talib/api-gateway-project/config"
)

// CLIConfig holds command-line configuration. Zero values mean "keep the
// value from the config file"; only -config has an environment fallback
// because the loader already applies GATEWAY_* overrides itself.
type CLIConfig struct {
	ConfigPath  string
	Addr        string
	MetricsAddr string
	LogLevel    string
	LogFormat   string
	RateLimit   int
	StoreDSN    string
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("GATEWAY_CONFIG", ""),
		"Path to configuration file, JSON or YAML (env: GATEWAY_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("GATEWAY_CONFIG", ""),
		"Path to configuration file, JSON or YAML (env: GATEWAY_CONFIG)")

	flag.StringVar(&cfg.Addr, "addr", "",
		"Gateway listen address, overrides config")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "",
		"Metrics listen address, overrides config")

	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error")

	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text")

	flag.IntVar(&cfg.RateLimit, "rate-limit", 0,
		"Requests per client per minute, overrides config")

	flag.StringVar(&cfg.StoreDSN, "store-dsn", "",
		"Store DSN, overrides config")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	// Custom usage
	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	// Validate config file exists when one was named
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	// Validate log level
	validLevels := []string{"", "debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	// Validate log format
	validFormats := []string{"", "json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d", cfg.RateLimit)
	}

	return nil
}

// applyOverrides writes the non-zero CLI values over the loaded config.
// Flags take precedence over both config files and environment overrides.
func applyOverrides(cfg *config.Config, cli *CLIConfig) {
	if cli.Addr != "" {
		cfg.Server.Addr = cli.Addr
	}
	if cli.MetricsAddr != "" {
		cfg.Server.MetricsAddr = cli.MetricsAddr
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	if cli.RateLimit > 0 {
		cfg.Gateway.RateLimitPerMinute = cli.RateLimit
	}
	if cli.StoreDSN != "" {
		cfg.Store.DSN = cli.StoreDSN
	}
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - API gateway

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with the built-in defaults (mock users and products services)
  %s

  # Run with a config file
  %s --config=/etc/gateway/config.yaml

  # Override the listen address and per-client rate limit
  %s --addr=:8081 --rate-limit=100

  # Run with environment variables
  export GATEWAY_CONFIG=/etc/gateway/config.yaml
  export GATEWAY_LOG_LEVEL=debug
  %s

  # Validate configuration only
  %s --config=config.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
