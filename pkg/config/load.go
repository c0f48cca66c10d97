package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file.
//
// ${VAR} references in the file are expanded from the environment before
// parsing, so secrets like API keys can live outside the file:
//
//	upstreams:
//	  anthropic-primary:
//	    type: anthropic
//	    apiKey: ${ANTHROPIC_API_KEY}
//
// Defaults are applied and the result validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration and applies BULWARK_*
// environment overrides on top. Overrides follow BULWARK_SECTION_FIELD
// (e.g. BULWARK_SERVER_LISTEN_ADDRESS) and always win over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies BULWARK_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	// Server
	if val := os.Getenv("BULWARK_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("BULWARK_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("BULWARK_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Resilience tunables
	if val := os.Getenv("BULWARK_RATELIMIT_MAX_REQUESTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.MaxRequests = i
		}
	}
	if val := os.Getenv("BULWARK_RATELIMIT_WINDOW_MS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.WindowMs = i
		}
	}
	if val := os.Getenv("BULWARK_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Breaker.FailureThreshold = i
		}
	}
	if val := os.Getenv("BULWARK_BREAKER_RESET_TIMEOUT_MS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Breaker.ResetTimeoutMs = i
		}
	}
	if val := os.Getenv("BULWARK_RETRY_MAX_ATTEMPTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Retry.MaxAttempts = i
		}
	}
	if val := os.Getenv("BULWARK_FALLBACK_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Fallback.Enabled = b
		}
	}

	// Telemetry
	if val := os.Getenv("BULWARK_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("BULWARK_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("BULWARK_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}

	// Upstream API keys: BULWARK_UPSTREAMS_<NAME>_API_KEY, where NAME is
	// the uppercased upstream name with dashes mapped to underscores.
	for name, upstream := range cfg.Upstreams {
		envName := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if val := os.Getenv("BULWARK_UPSTREAMS_" + envName + "_API_KEY"); val != "" {
			upstream.APIKey = val
			cfg.Upstreams[name] = upstream
		}
	}
}
