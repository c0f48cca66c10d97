package proxy

import (
	"log/slog"
	"sync"
	"time"

	"palisade-hq/bulwark/pkg/breaker"
	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/dedup"
	"palisade-hq/bulwark/pkg/fallback"
	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/ratelimit"
	"palisade-hq/bulwark/pkg/retry"
	"palisade-hq/bulwark/pkg/telemetry/metrics"
)

// AdapterSource resolves upstream names to adapters. Implemented by
// providerfactory.Manager.
type AdapterSource interface {
	Adapter(name string) (providers.Adapter, error)
}

// Registry owns the resilience pipeline components and their observer
// wiring. One Registry backs one proxy instance; there is no process-wide
// shared state, so tests construct as many independent registries as they
// need.
//
// # Components
//
//   - rate limiter: multi-dimension sliding-window admission
//   - circuit breakers: one per upstream, lazily created
//   - retry executor: backoff with degrade-to-cache on exhaustion
//   - dedup group: in-flight coalescing by request fingerprint
//   - fallback cache: nil unless enabled in config
//
// State changes flow into structured logs and the metrics collector through
// the component observer callbacks registered at construction.
type Registry struct {
	limiter  *ratelimit.MultiLimiter
	breakers *breaker.Registry
	dedup    *dedup.Group
	fallback *fallback.Cache
	adapters AdapterSource
	metrics  *metrics.Collector
	logger   *slog.Logger

	// mu guards the fields swapped on hot reload
	mu             sync.RWMutex
	retry          *retry.Executor
	attemptTimeout time.Duration
}

// NewRegistry builds the pipeline from configuration. adapters must resolve
// every upstream named in requests; collector may be nil, which disables
// metric recording.
func NewRegistry(cfg *config.Config, adapters AdapterSource, collector *metrics.Collector) (*Registry, error) {
	if collector == nil {
		collector = metrics.NewCollector(&config.MetricsConfig{}, nil)
	}

	r := &Registry{
		adapters:       adapters,
		metrics:        collector,
		logger:         slog.Default().With("component", "proxy"),
		attemptTimeout: cfg.Breaker.Timeout(),
	}

	r.limiter = ratelimit.NewMultiLimiter(multiLimitConfig(cfg.RateLimit))

	r.breakers = breaker.NewRegistry(breakerConfig(cfg.Breaker), func(change breaker.StateChange) {
		r.logger.Warn("breaker state changed",
			"upstream", change.Upstream,
			"from", string(change.From),
			"to", string(change.To),
		)
		r.metrics.RecordBreakerTransition(change.Upstream, string(change.From), string(change.To))
	})

	if cfg.Fallback.Enabled {
		cache, err := fallback.NewCache(fallback.Config{
			TTL:           cfg.Fallback.TTL(),
			MaxEntries:    cfg.Fallback.MaxEntries,
			DBPath:        cfg.Fallback.DBPath,
			PruneSchedule: cfg.Fallback.PruneSchedule,
		})
		if err != nil {
			return nil, err
		}
		r.fallback = cache
	}

	r.retry = retry.NewExecutor(retryPolicy(cfg.Retry), r.fallbackSource(), r.onRetry)

	r.dedup = dedup.NewGroup(cfg.Dedup.Window(), func(fingerprint string) {
		r.logger.Debug("joined in-flight request", "fingerprint", shortFingerprint(fingerprint))
		r.metrics.RecordDedupJoin()
	})

	return r, nil
}

// ApplyConfig applies a reloaded configuration to the running pipeline.
// Rate limit, breaker, and retry tunables take effect immediately; the
// dedup window and fallback cache settings require a restart.
func (r *Registry) ApplyConfig(cfg *config.Config) {
	r.limiter.UpdateConfig(multiLimitConfig(cfg.RateLimit))
	r.breakers.UpdateConfig(breakerConfig(cfg.Breaker))

	r.mu.Lock()
	r.retry = retry.NewExecutor(retryPolicy(cfg.Retry), r.fallbackSource(), r.onRetry)
	r.attemptTimeout = cfg.Breaker.Timeout()
	r.mu.Unlock()

	r.logger.Info("resilience configuration applied",
		"rate_limit_max", cfg.RateLimit.MaxRequests,
		"breaker_failure_threshold", cfg.Breaker.FailureThreshold,
		"retry_max_attempts", cfg.Retry.MaxAttempts,
	)
}

// Breakers exposes the breaker registry for readiness reporting.
func (r *Registry) Breakers() *breaker.Registry {
	return r.breakers
}

// Metrics exposes the metrics collector.
func (r *Registry) Metrics() *metrics.Collector {
	return r.metrics
}

// Fallback exposes the fallback cache; nil when disabled.
func (r *Registry) Fallback() *fallback.Cache {
	return r.fallback
}

// Inflight reports the number of coalesced request groups in flight.
func (r *Registry) Inflight() int {
	return r.dedup.Inflight()
}

// Close releases the registry's owned resources. Adapters are owned by
// their manager, not the registry.
func (r *Registry) Close() error {
	if r.fallback != nil {
		return r.fallback.Close()
	}
	return nil
}

// retryExecutor returns the current executor; reload swaps it wholesale.
func (r *Registry) retryExecutor() *retry.Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retry
}

func (r *Registry) guardTimeout() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attemptTimeout
}

// fallbackSource wraps the cache as a retry fallback source. The indirection
// avoids handing the executor a non-nil interface around a nil cache.
func (r *Registry) fallbackSource() retry.FallbackSource {
	if r.fallback == nil {
		return nil
	}
	return r.fallback
}

func (r *Registry) onRetry(attempt retry.Attempt) {
	r.logger.Warn("retrying upstream call",
		"upstream", attempt.Upstream,
		"attempt", attempt.Number,
		"delay", attempt.Delay,
		"error", attempt.Err,
	)
	r.metrics.RecordRetryAttempt(attempt.Upstream)
}

// multiLimitConfig maps the YAML tunables onto the limiter's config. Every
// dimension shares the same budget; per-dimension overrides are a config
// surface we have not needed yet.
func multiLimitConfig(cfg config.RateLimitConfig) ratelimit.MultiConfig {
	return ratelimit.MultiConfig{
		Default: ratelimit.Config{
			Limit:       cfg.MaxRequests,
			Window:      cfg.Window(),
			BurstLimit:  cfg.BurstLimit,
			BurstWindow: cfg.BurstWindow(),
		},
	}
}

func breakerConfig(cfg config.BreakerConfig) breaker.Config {
	return breaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		ResetTimeout:     cfg.ResetTimeout(),
		ProbeLimit:       cfg.ProbeLimit,
	}
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:   cfg.MaxAttempts,
		BaseDelay:     cfg.BaseDelay(),
		BackoffFactor: cfg.BackoffFactor,
		MaxDelay:      cfg.MaxDelay(),
	}
}

// shortFingerprint truncates a fingerprint for log lines; the full hash is
// 64 hex characters of noise.
func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
