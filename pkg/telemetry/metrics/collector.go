package metrics

import (
	"fmt"
	"sync"
	"time"

	"palisade-hq/bulwark/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the single entry point for all Prometheus metrics in the
// proxy. It owns a registry, pre-allocates the metric families, and provides
// typed recording methods so callers never touch label values directly.
//
// When metrics are disabled in the configuration, every recording method is
// a no-op.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics    *RequestMetrics
	resilienceMetrics *ResilienceMetrics
	cacheMetrics      *CacheMetrics

	// Cardinality tracking for the model label, which is caller-supplied.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil a fresh registry
// is created, keeping tests isolated from each other.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultRequestDurationBuckets
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.resilienceMetrics = NewResilienceMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// RecordRequest records a completed chat request.
//
// Status is "success", "error", "rejected", or "fallback". The model label
// is caller-supplied and collapses to "other" past the cardinality limit.
func (c *Collector) RecordRequest(upstream, model, status string, duration time.Duration, usage TokenCounts) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("request:%s:%s:%s", upstream, model, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		model = "other"
	}

	c.requestMetrics.RecordRequest(upstream, model, status, duration)
	c.requestMetrics.RecordTokens(upstream, model, usage.Prompt, usage.Completion)
}

// TokenCounts carries token usage for RecordRequest.
type TokenCounts struct {
	Prompt     int
	Completion int
}

// RecordRateLimitRejection records a rate limiter rejection.
func (c *Collector) RecordRateLimitRejection(dimension string) {
	if !c.config.Enabled {
		return
	}
	c.resilienceMetrics.RecordRateLimitRejection(dimension)
}

// RecordBreakerTransition records a circuit breaker state change.
func (c *Collector) RecordBreakerTransition(upstream, from, to string) {
	if !c.config.Enabled {
		return
	}
	c.resilienceMetrics.RecordBreakerTransition(upstream, from, to)
}

// RecordRetryAttempt records a failed attempt that will be retried.
func (c *Collector) RecordRetryAttempt(upstream string) {
	if !c.config.Enabled {
		return
	}
	c.resilienceMetrics.RecordRetryAttempt(upstream)
}

// RecordRetriesExhausted records a request that ran out of attempts.
func (c *Collector) RecordRetriesExhausted(upstream string) {
	if !c.config.Enabled {
		return
	}
	c.resilienceMetrics.RecordRetriesExhausted(upstream)
}

// RecordDedupJoin records a request coalesced onto an in-flight one.
func (c *Collector) RecordDedupJoin() {
	if !c.config.Enabled {
		return
	}
	c.resilienceMetrics.RecordDedupJoin()
}

// RecordFallbackServed records a stale cached result served to a client.
func (c *Collector) RecordFallbackServed(upstream string) {
	if !c.config.Enabled {
		return
	}
	c.resilienceMetrics.RecordFallbackServed(upstream)
}

// RecordCacheHit records a fallback cache hit.
func (c *Collector) RecordCacheHit() {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordHit()
}

// RecordCacheMiss records a fallback cache miss.
func (c *Collector) RecordCacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordMiss()
}

// UpdateCacheSize updates the fallback cache entry gauge.
func (c *Collector) UpdateCacheSize(size int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.UpdateSize(size)
}

// RecordCacheEviction records a fallback cache eviction.
// Reason is "expired" or "capacity".
func (c *Collector) RecordCacheEviction(reason string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordEviction(reason)
}

// Registry returns the Prometheus registry used by this collector. Use it
// to mount the scrape endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if the cardinality limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
