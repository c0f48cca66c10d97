package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "rateLimit.windowMs").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every validation failure in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// upstreamTypes is the closed adapter set.
var upstreamTypes = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"generic":   true,
}

// Validate checks the entire configuration, collecting every failure
// rather than stopping at the first. Returns nil when valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstreams(cfg.Upstreams)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateBreaker(&cfg.Breaker)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateDedup(&cfg.Dedup)...)
	errs = append(errs, validateFallback(&cfg.Fallback)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listenAddress",
			Message: "listen address is required",
		})
	} else if !strings.Contains(cfg.ListenAddress, ":") {
		errs = append(errs, FieldError{
			Field:   "server.listenAddress",
			Message: fmt.Sprintf("invalid address %q, expected host:port", cfg.ListenAddress),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.readTimeout",
			Message: "must not be negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdownTimeout",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateUpstreams(upstreams map[string]UpstreamConfig) []FieldError {
	var errs []FieldError

	if len(upstreams) == 0 {
		errs = append(errs, FieldError{
			Field:   "upstreams",
			Message: "at least one upstream is required",
		})
		return errs
	}

	for name, upstream := range upstreams {
		field := func(f string) string { return fmt.Sprintf("upstreams.%s.%s", name, f) }

		if !upstreamTypes[upstream.Type] {
			errs = append(errs, FieldError{
				Field:   field("type"),
				Message: fmt.Sprintf("unknown type %q, expected anthropic, openai, or generic", upstream.Type),
			})
		}
		if upstream.Type == "generic" && upstream.BaseURL == "" {
			errs = append(errs, FieldError{
				Field:   field("baseUrl"),
				Message: "base URL is required for generic upstreams",
			})
		}
		if upstream.BaseURL != "" {
			if u, err := url.Parse(upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   field("baseUrl"),
					Message: fmt.Sprintf("invalid URL %q", upstream.BaseURL),
				})
			}
		}
		if upstream.TimeoutMs < 0 {
			errs = append(errs, FieldError{
				Field:   field("timeoutMs"),
				Message: "must not be negative",
			})
		}
	}
	return errs
}

func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if cfg.WindowMs <= 0 {
		errs = append(errs, FieldError{
			Field:   "rateLimit.windowMs",
			Message: "must be positive",
		})
	}
	if cfg.MaxRequests < 0 {
		errs = append(errs, FieldError{
			Field:   "rateLimit.maxRequests",
			Message: "must not be negative",
		})
	}
	if cfg.BurstLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "rateLimit.burstLimit",
			Message: "must not be negative",
		})
	}
	if cfg.BurstLimit > 0 && cfg.BurstWindowMs >= cfg.WindowMs {
		errs = append(errs, FieldError{
			Field:   "rateLimit.burstWindowMs",
			Message: "burst window must be shorter than the sustained window",
		})
	}
	return errs
}

func validateBreaker(cfg *BreakerConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.failureThreshold",
			Message: "must be positive",
		})
	}
	if cfg.SuccessThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.successThreshold",
			Message: "must be positive",
		})
	}
	if cfg.ResetTimeoutMs <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.resetTimeoutMs",
			Message: "must be positive",
		})
	}
	if cfg.ProbeLimit <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.probeLimit",
			Message: "must be positive",
		})
	}
	return errs
}

func validateRetry(cfg *RetryConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAttempts <= 0 {
		errs = append(errs, FieldError{
			Field:   "retry.maxAttempts",
			Message: "must be positive",
		})
	}
	if cfg.BaseDelayMs <= 0 {
		errs = append(errs, FieldError{
			Field:   "retry.baseDelayMs",
			Message: "must be positive",
		})
	}
	if cfg.BackoffFactor < 1 {
		errs = append(errs, FieldError{
			Field:   "retry.backoffFactor",
			Message: "must be at least 1",
		})
	}
	if cfg.MaxDelayMs < cfg.BaseDelayMs {
		errs = append(errs, FieldError{
			Field:   "retry.maxDelayMs",
			Message: "must be at least baseDelayMs",
		})
	}
	return errs
}

func validateDedup(cfg *DedupConfig) []FieldError {
	var errs []FieldError

	if cfg.WindowMs < 0 {
		errs = append(errs, FieldError{
			Field:   "dedup.windowMs",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateFallback(cfg *FallbackConfig) []FieldError {
	var errs []FieldError

	if cfg.TTLMs <= 0 {
		errs = append(errs, FieldError{
			Field:   "fallback.ttlMs",
			Message: "must be positive",
		})
	}
	if cfg.MaxEntries <= 0 {
		errs = append(errs, FieldError{
			Field:   "fallback.maxEntries",
			Message: "must be positive",
		})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "fallback.pruneSchedule",
				Message: fmt.Sprintf("invalid cron expression %q", cfg.PruneSchedule),
			})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q, expected debug, info, warn, or error", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q, expected json or text", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "must start with /",
		})
	}
	return errs
}
