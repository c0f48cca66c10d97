// Package metrics provides Prometheus metrics collection for the bulwark
// proxy.
//
// # Overview
//
// The metrics package covers the whole resilience pipeline: proxied chat
// requests, rate limiter rejections, circuit breaker transitions and state,
// retry attempts and exhaustions, dedup joins, and fallback cache activity.
// All metric families share the configured namespace and subsystem
// (bulwark_proxy_* by default).
//
// # Metrics Categories
//
//   - Request Metrics: Request count, duration histogram, token counts
//   - Resilience Metrics: Rate limit rejections, breaker transitions and
//     state, retry attempts and exhaustions, dedup joins, fallback serves
//   - Cache Metrics: Fallback cache hits, misses, size, evictions
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordRequest("anthropic-primary", "claude-sonnet-4-5",
//		"success", 1200*time.Millisecond,
//		metrics.TokenCounts{Prompt: 900, Completion: 600})
//
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Cardinality
//
// The model label is caller-supplied, so the collector tracks unique label
// sets and collapses the model to "other" past 10K combinations.
//
// # Thread Safety
//
// All recording methods are safe for concurrent use.
package metrics
