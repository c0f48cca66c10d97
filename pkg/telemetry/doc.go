// Package telemetry provides observability for the bulwark proxy.
//
// # Overview
//
// The telemetry package implements structured logging, Prometheus metrics,
// and health check endpoints for the resilience pipeline.
//
// # Components
//
//   - logging: log/slog setup with secret redaction and request-scoped
//     context fields
//   - metrics: Prometheus metrics for requests, rate limiting, circuit
//     breaking, retries, dedup, and the fallback cache
//   - health: liveness, readiness, and version endpoints
//
// # Usage
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging)
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("anthropic-primary", "claude-sonnet-4-5",
//		"success", time.Second, metrics.TokenCounts{Prompt: 900, Completion: 600})
//
//	checker := health.New(5 * time.Second)
//	checker.Register("upstreams", health.UpstreamsCheck(breakers))
package telemetry
