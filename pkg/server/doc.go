// Package server provides the HTTP front of the bulwark proxy.
//
// The package owns the listener, the route table, and the middleware chain;
// the resilience pipeline it serves lives in pkg/proxy.
//
// # Routes
//
//   - POST /v1/chat: the chat endpoint (streaming and non-streaming)
//   - GET /health: liveness probe, always 200 while the process runs
//   - GET /ready: readiness probe, 503 when no upstream can take traffic
//   - GET /version: build information
//   - GET /metrics: Prometheus exposition (path configurable)
//
// # Basic Usage
//
//	cfg, err := config.LoadConfig(path)
//	if err != nil {
//	    return err
//	}
//
//	manager, err := providerfactory.NewManagerFromConfig(cfg.Upstreams)
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	registry, err := proxy.NewRegistry(cfg, manager, collector)
//	if err != nil {
//	    return err
//	}
//	defer registry.Close()
//
//	srv := server.New(cfg, registry, manager, server.BuildInfo{Version: version})
//	return srv.Start(ctx)
//
// Start blocks until the context is cancelled, SIGINT/SIGTERM arrives, or
// the listener fails, then drains in-flight requests within the configured
// shutdown timeout.
//
// # Timeouts
//
// The server's WriteTimeout defaults to zero: a write deadline would cut
// long-lived SSE responses. Non-streaming requests are bounded by the
// configured request timeout inside the chat handler; streaming requests by
// the upstream per-call timeout.
package server
