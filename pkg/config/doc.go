// Package config provides configuration management for the bulwark proxy.
//
// This package handles loading, validating, and hot-reloading configuration
// from YAML files with environment variable overrides. It provides a
// type-safe configuration system with comprehensive validation and sensible
// defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// ${VAR} references inside the file are expanded from the environment before
// parsing, so secrets such as API keys never have to live in the file.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention BULWARK_SECTION_FIELD.
// For example:
//
//   - BULWARK_SERVER_LISTEN_ADDRESS overrides server.listenAddress
//   - BULWARK_RATELIMIT_MAX_REQUESTS overrides rateLimit.maxRequests
//   - BULWARK_UPSTREAMS_ANTHROPIC_PRIMARY_API_KEY overrides the API key of
//     the upstream named "anthropic-primary"
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file and invokes a callback with each
// successfully reloaded Config. A reload that fails to parse or validate is
// logged and skipped, so a bad edit never replaces a working configuration:
//
//	w, err := config.NewWatcher("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go w.Watch(ctx, func(cfg *config.Config) {
//	    // push new tunables into the running pipeline
//	})
//
// # Validation
//
// All configuration is validated automatically during loading. Validation
// errors are collected rather than reported one at a time, and include field
// paths with helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - upstreams.anthropic-primary.type: unknown type "antropic", expected anthropic, openai, or generic
//	  - retry.backoffFactor: must be at least 1
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listenAddress: "127.0.0.1:8080"
//
//	upstreams:
//	  anthropic-primary:
//	    type: anthropic
//	    apiKey: "${ANTHROPIC_API_KEY}"
//
//	rateLimit:
//	  windowMs: 60000
//	  maxRequests: 100
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Thread Safety
//
// Config values are plain structs; treat a loaded *Config as immutable and
// swap whole instances on reload rather than mutating fields in place.
package config
