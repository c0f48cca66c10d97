package metrics

import (
	"time"

	"palisade-hq/bulwark/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks proxied chat request metrics.
//
// Metrics:
//   - bulwark_proxy_requests_total: Total requests by upstream, model, status
//   - bulwark_proxy_request_duration_seconds: Request duration histogram
//   - bulwark_proxy_tokens_total: Token counts by upstream, model, kind
type RequestMetrics struct {
	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	tokensTotal   *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided
// registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of proxied chat requests",
			},
			[]string{"upstream", "model", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Chat request duration in seconds, streaming included",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"upstream", "model", "status"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total tokens by kind (prompt or completion)",
			},
			[]string{"upstream", "model", "kind"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.duration, rm.tokensTotal)
	return rm
}

// RecordRequest records a completed request.
func (rm *RequestMetrics) RecordRequest(upstream, model, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(upstream, model, status).Inc()
	rm.duration.WithLabelValues(upstream, model, status).Observe(duration.Seconds())
}

// RecordTokens records token usage for a completed request.
func (rm *RequestMetrics) RecordTokens(upstream, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		rm.tokensTotal.WithLabelValues(upstream, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		rm.tokensTotal.WithLabelValues(upstream, model, "completion").Add(float64(completionTokens))
	}
}
