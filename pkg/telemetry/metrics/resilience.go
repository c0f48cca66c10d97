package metrics

import (
	"palisade-hq/bulwark/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// breakerStateValues maps breaker state names to gauge values.
var breakerStateValues = map[string]float64{
	"closed":    0,
	"open":      1,
	"half-open": 2,
}

// ResilienceMetrics tracks the resilience pipeline: rate limiting, circuit
// breaking, retries, dedup, and fallback serving.
//
// Metrics:
//   - bulwark_proxy_ratelimit_rejections_total: Rejections by dimension
//   - bulwark_proxy_breaker_transitions_total: Breaker transitions by upstream
//   - bulwark_proxy_breaker_state: Current breaker state per upstream
//     (0=closed, 1=open, 2=half-open)
//   - bulwark_proxy_retry_attempts_total: Retry attempts by upstream
//   - bulwark_proxy_retries_exhausted_total: Attempt budget exhaustions
//   - bulwark_proxy_dedup_joins_total: Requests coalesced onto an in-flight one
//   - bulwark_proxy_fallback_served_total: Stale cached results served
type ResilienceMetrics struct {
	rateLimitRejections *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
	retryAttempts       *prometheus.CounterVec
	retriesExhausted    *prometheus.CounterVec
	dedupJoins          prometheus.Counter
	fallbackServed      *prometheus.CounterVec
}

// NewResilienceMetrics creates and registers resilience metrics with the
// provided registry.
func NewResilienceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ResilienceMetrics {
	rm := &ResilienceMetrics{
		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_rejections_total",
				Help:      "Total requests rejected by the rate limiter, by dimension",
			},
			[]string{"dimension"},
		),

		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Total circuit breaker state transitions",
			},
			[]string{"upstream", "from", "to"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"upstream"},
		),

		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total failed attempts that were retried",
			},
			[]string{"upstream"},
		),

		retriesExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retries_exhausted_total",
				Help:      "Total requests that exhausted their attempt budget",
			},
			[]string{"upstream"},
		),

		dedupJoins: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dedup_joins_total",
				Help:      "Total requests coalesced onto an identical in-flight request",
			},
		),

		fallbackServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fallback_served_total",
				Help:      "Total stale cached results served after retry exhaustion",
			},
			[]string{"upstream"},
		),
	}

	registry.MustRegister(
		rm.rateLimitRejections,
		rm.breakerTransitions,
		rm.breakerState,
		rm.retryAttempts,
		rm.retriesExhausted,
		rm.dedupJoins,
		rm.fallbackServed,
	)
	return rm
}

// RecordRateLimitRejection records a rejection on the given dimension.
func (rm *ResilienceMetrics) RecordRateLimitRejection(dimension string) {
	rm.rateLimitRejections.WithLabelValues(dimension).Inc()
}

// RecordBreakerTransition records a breaker transition and updates the
// per-upstream state gauge.
func (rm *ResilienceMetrics) RecordBreakerTransition(upstream, from, to string) {
	rm.breakerTransitions.WithLabelValues(upstream, from, to).Inc()
	if v, ok := breakerStateValues[to]; ok {
		rm.breakerState.WithLabelValues(upstream).Set(v)
	}
}

// RecordRetryAttempt records one failed attempt that will be retried.
func (rm *ResilienceMetrics) RecordRetryAttempt(upstream string) {
	rm.retryAttempts.WithLabelValues(upstream).Inc()
}

// RecordRetriesExhausted records a request that ran out of attempts.
func (rm *ResilienceMetrics) RecordRetriesExhausted(upstream string) {
	rm.retriesExhausted.WithLabelValues(upstream).Inc()
}

// RecordDedupJoin records a request that joined an in-flight execution.
func (rm *ResilienceMetrics) RecordDedupJoin() {
	rm.dedupJoins.Inc()
}

// RecordFallbackServed records a stale cached result served to a client.
func (rm *ResilienceMetrics) RecordFallbackServed(upstream string) {
	rm.fallbackServed.WithLabelValues(upstream).Inc()
}
