package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultRequestTimeout  = 120 * time.Second

	// Upstream defaults
	DefaultUpstreamTimeoutMs = 60000

	// Rate limit defaults
	DefaultRateLimitWindowMs    = 60000
	DefaultRateLimitMaxRequests = 100
	DefaultBurstWindowMs        = 1000

	// Breaker defaults
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 1
	DefaultBreakerTimeoutMs = 60000
	DefaultResetTimeoutMs   = 30000
	DefaultProbeLimit       = 1

	// Retry defaults
	DefaultMaxAttempts   = 3
	DefaultBaseDelayMs   = 1000
	DefaultBackoffFactor = 2.0
	DefaultMaxDelayMs    = 30000

	// Dedup defaults
	DefaultDedupWindowMs = 30000

	// Fallback defaults
	DefaultFallbackTTLMs      = 300000 // 5m
	DefaultFallbackMaxEntries = 1000
	DefaultPruneSchedule      = "*/10 * * * *"

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsNamespace = "bulwark"
	DefaultMetricsSubsystem = "proxy"
	DefaultMetricsPath      = "/metrics"
)

// DefaultRequestDurationBuckets are histogram buckets tuned for LLM request
// latencies (100ms to 120s, streaming included).
var DefaultRequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0}

// ApplyDefaults fills in zero-valued fields with their defaults. It is
// called by LoadConfig; call it directly when building a Config in code.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}

	// Upstreams
	for name, upstream := range cfg.Upstreams {
		if upstream.TimeoutMs == 0 {
			upstream.TimeoutMs = DefaultUpstreamTimeoutMs
		}
		cfg.Upstreams[name] = upstream
	}

	// Rate limit
	if cfg.RateLimit.WindowMs == 0 {
		cfg.RateLimit.WindowMs = DefaultRateLimitWindowMs
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = DefaultRateLimitMaxRequests
	}
	if cfg.RateLimit.BurstWindowMs == 0 {
		cfg.RateLimit.BurstWindowMs = DefaultBurstWindowMs
	}

	// Breaker
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.Breaker.TimeoutMs == 0 {
		cfg.Breaker.TimeoutMs = DefaultBreakerTimeoutMs
	}
	if cfg.Breaker.ResetTimeoutMs == 0 {
		cfg.Breaker.ResetTimeoutMs = DefaultResetTimeoutMs
	}
	if cfg.Breaker.ProbeLimit == 0 {
		cfg.Breaker.ProbeLimit = DefaultProbeLimit
	}

	// Retry
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.BaseDelayMs == 0 {
		cfg.Retry.BaseDelayMs = DefaultBaseDelayMs
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.Retry.MaxDelayMs == 0 {
		cfg.Retry.MaxDelayMs = DefaultMaxDelayMs
	}

	// Dedup
	if cfg.Dedup.WindowMs == 0 {
		cfg.Dedup.WindowMs = DefaultDedupWindowMs
	}

	// Fallback
	if cfg.Fallback.TTLMs == 0 {
		cfg.Fallback.TTLMs = DefaultFallbackTTLMs
	}
	if cfg.Fallback.MaxEntries == 0 {
		cfg.Fallback.MaxEntries = DefaultFallbackMaxEntries
	}
	if cfg.Fallback.PruneSchedule == "" {
		cfg.Fallback.PruneSchedule = DefaultPruneSchedule
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = DefaultRequestDurationBuckets
	}
}
