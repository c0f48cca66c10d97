package metrics

import (
	"palisade-hq/bulwark/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks fallback cache performance.
//
// Metrics:
//   - bulwark_proxy_cache_hits_total: Total cache hits
//   - bulwark_proxy_cache_misses_total: Total cache misses
//   - bulwark_proxy_cache_entries: Current number of cached results
//   - bulwark_proxy_cache_evictions_total: Total evictions (TTL or capacity)
type CacheMetrics struct {
	hitsTotal      prometheus.Counter
	missesTotal    prometheus.Counter
	entries        prometheus.Gauge
	evictionsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the provided
// registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of fallback cache hits",
			},
		),

		missesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of fallback cache misses",
			},
		),

		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_entries",
				Help:      "Current number of cached fallback results",
			},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_evictions_total",
				Help:      "Total fallback cache evictions by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.entries, cm.evictionsTotal)
	return cm
}

// RecordHit records a fallback cache hit.
func (cm *CacheMetrics) RecordHit() {
	cm.hitsTotal.Inc()
}

// RecordMiss records a fallback cache miss.
func (cm *CacheMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}

// UpdateSize updates the current entry count.
func (cm *CacheMetrics) UpdateSize(size int) {
	cm.entries.Set(float64(size))
}

// RecordEviction records an eviction. Reason is "expired" or "capacity".
func (cm *CacheMetrics) RecordEviction(reason string) {
	cm.evictionsTotal.WithLabelValues(reason).Inc()
}
