// Package health provides liveness and readiness probes for the bulwark
// proxy.
//
// # Overview
//
// The health package implements liveness and readiness endpoints for
// Kubernetes and other orchestration systems, plus a version information
// endpoint. Readiness aggregates named component checks; liveness never
// runs them.
//
// # Endpoints
//
//   - /health: liveness, 200 while the process runs
//   - /ready: readiness, 503 when any registered check is unhealthy
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.Register("upstreams", health.UpstreamsCheck(breakers))
//
//	mux.HandleFunc("/health", checker.LivenessHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
//	mux.HandleFunc("/version", health.VersionHandler(version, commit, buildTime))
package health
