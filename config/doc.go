// Package config loads and validates gateway configuration.
//
// Configuration comes from three layers with last-wins semantics:
// built-in defaults, JSON or YAML config files, and GATEWAY_* environment
// variables. The result is immutable after Load; there is no runtime
// reload.
//
// # Basic Usage
//
//	cfg, err := config.Load("gateway.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Multiple file layers merge in order:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // overrides base
//	cfg, err := loader.Load()
//
// # Environment Variable Overrides
//
//	export GATEWAY_SERVER_ADDR=":8443"
//	export GATEWAY_RATELIMIT_BACKEND="redis"
//	export GATEWAY_REDIS_ADDR="localhost:6379"
//	export GATEWAY_STATIC_KEYS="key1,key2"
//
// # Durations
//
// Duration fields accept Go duration strings ("10s", "1m30s") or integer
// nanoseconds in both formats.
//
// # Security
//
// File loading enforces a 10MB size limit, JSON nesting depth checks,
// path traversal validation, and regular file checks.
package config
