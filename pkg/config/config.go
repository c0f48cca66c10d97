package config

import "time"

// Config is the root configuration for the bulwark proxy. It covers the
// HTTP server, the configured upstreams, the resilience pipeline tunables
// (rate limiting, circuit breaking, retry, dedup, fallback), and telemetry.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Upstreams maps upstream names to their provider configuration.
	Upstreams map[string]UpstreamConfig `yaml:"upstreams"`

	// RateLimit contains sliding-window admission control tunables.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// Breaker contains per-upstream circuit breaker tunables.
	Breaker BreakerConfig `yaml:"breaker"`

	// Retry contains backoff and attempt-budget tunables.
	Retry RetryConfig `yaml:"retry"`

	// Dedup contains in-flight coalescing tunables.
	Dedup DedupConfig `yaml:"dedup"`

	// Fallback contains degrade-to-cache tunables.
	Fallback FallbackConfig `yaml:"fallback"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is "host:port" to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listenAddress"`

	// ReadTimeout bounds reading the entire request including body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout bounds response writes. It is deliberately unset by
	// default: a write timeout would cut long-lived SSE responses.
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// IdleTimeout bounds keep-alive waits.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// MaxHeaderBytes caps request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"maxHeaderBytes"`

	// RequestTimeout bounds non-streaming request handling.
	// Default: 120s
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// UpstreamConfig contains configuration for a single upstream provider.
type UpstreamConfig struct {
	// Type selects the adapter: "anthropic", "openai", or "generic".
	Type string `yaml:"type"`

	// BaseURL is the upstream's API endpoint. Required for generic
	// upstreams; defaults to the provider's public endpoint otherwise.
	BaseURL string `yaml:"baseUrl"`

	// APIKey authenticates against the upstream. Supports ${ENV}
	// expansion, e.g. "${ANTHROPIC_API_KEY}".
	APIKey string `yaml:"apiKey"`

	// TimeoutMs is the hard per-call timeout in milliseconds.
	// Default: 60000
	TimeoutMs int `yaml:"timeoutMs"`
}

// Timeout returns the per-call timeout as a duration.
func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RateLimitConfig contains sliding-window admission control tunables.
type RateLimitConfig struct {
	// WindowMs is the sustained window length in milliseconds.
	// Default: 60000
	WindowMs int `yaml:"windowMs"`

	// MaxRequests is the admission budget per window.
	// Default: 100
	MaxRequests int `yaml:"maxRequests"`

	// BurstLimit is the budget of the short burst window.
	// Default: 0 (burst checking disabled)
	BurstLimit int `yaml:"burstLimit"`

	// BurstWindowMs is the burst window length in milliseconds.
	// Default: 1000
	BurstWindowMs int `yaml:"burstWindowMs"`
}

// Window returns the sustained window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// BurstWindow returns the burst window as a duration.
func (c RateLimitConfig) BurstWindow() time.Duration {
	return time.Duration(c.BurstWindowMs) * time.Millisecond
}

// BreakerConfig contains circuit breaker tunables.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips a
	// closed breaker.
	// Default: 5
	FailureThreshold int `yaml:"failureThreshold"`

	// SuccessThreshold is the consecutive-probe-success count that
	// closes a half-open breaker.
	// Default: 1
	SuccessThreshold int `yaml:"successThreshold"`

	// TimeoutMs is the guarded-call timeout in milliseconds; calls
	// exceeding it count as failures.
	// Default: 60000
	TimeoutMs int `yaml:"timeoutMs"`

	// ResetTimeoutMs is how long an open breaker rejects before
	// admitting probes, in milliseconds.
	// Default: 30000
	ResetTimeoutMs int `yaml:"resetTimeoutMs"`

	// ProbeLimit is the maximum number of concurrent half-open probes.
	// Default: 1
	ProbeLimit int `yaml:"probeLimit"`
}

// Timeout returns the guarded-call timeout as a duration.
func (c BreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ResetTimeout returns the open-state reset timeout as a duration.
func (c BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMs) * time.Millisecond
}

// RetryConfig contains retry executor tunables.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first.
	// Default: 3
	MaxAttempts int `yaml:"maxAttempts"`

	// BaseDelayMs is the backoff before the first retry, in
	// milliseconds.
	// Default: 1000
	BaseDelayMs int `yaml:"baseDelayMs"`

	// BackoffFactor multiplies the delay per retry.
	// Default: 2
	BackoffFactor float64 `yaml:"backoffFactor"`

	// MaxDelayMs caps the backoff, in milliseconds.
	// Default: 30000
	MaxDelayMs int `yaml:"maxDelayMs"`
}

// BaseDelay returns the initial backoff as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// DedupConfig contains in-flight coalescing tunables.
type DedupConfig struct {
	// WindowMs is the TTL valve in milliseconds: how long an in-flight
	// entry stays joinable before new identical requests start fresh.
	// Default: 30000
	WindowMs int `yaml:"windowMs"`
}

// Window returns the dedup TTL valve as a duration.
func (c DedupConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// FallbackConfig contains degrade-to-cache tunables.
type FallbackConfig struct {
	// Enabled turns fallback caching on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// TTLMs is how long a cached result stays servable, in
	// milliseconds.
	// Default: 300000 (5m)
	TTLMs int `yaml:"ttlMs"`

	// MaxEntries bounds the cache size (LRU eviction at capacity).
	// Default: 1000
	MaxEntries int `yaml:"maxEntries"`

	// DBPath enables SQLite persistence when non-empty.
	DBPath string `yaml:"dbPath"`

	// PruneSchedule is a cron expression for pruning expired persisted
	// rows.
	// Default: "*/10 * * * *"
	PruneSchedule string `yaml:"pruneSchedule"`
}

// TTL returns the cache TTL as a duration.
func (c FallbackConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes all metric names.
	// Default: "bulwark"
	Namespace string `yaml:"namespace"`

	// Subsystem is the second metric name component.
	// Default: "proxy"
	Subsystem string `yaml:"subsystem"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// RequestDurationBuckets are the histogram buckets for request
	// duration, in seconds.
	RequestDurationBuckets []float64 `yaml:"requestDurationBuckets"`
}
