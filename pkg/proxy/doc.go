// Package proxy implements the chat request pipeline of the bulwark proxy.
//
// # Overview
//
// The package ties the resilience components together around one operation:
// take a canonical chat request, run it through admission control, in-flight
// dedup, circuit breaking, and retry, and hand back the response event
// stream.
//
// The Registry constructs and owns the pipeline components from
// configuration and wires their observer callbacks into structured logs and
// Prometheus metrics. The Orchestrator executes requests against a registry.
// Neither holds process-wide state: tests build as many independent
// registries as they need.
//
// # Pipeline
//
//	ParseChatRequest -> Orchestrator.Execute:
//	    rate limiter   (reject before upstream contact)
//	    dedup group    (coalesce identical in-flight requests)
//	    retry executor (re-dial retryable establishment failures)
//	    breaker guard  (per-upstream, wraps each dial attempt)
//	    adapter.Send   (provider-specific upstream exchange)
//
// Completed responses feed the fallback cache; on retry exhaustion a cached
// result is replayed with its terminal event flagged as fallback.
//
// # Usage
//
//	registry, err := proxy.NewRegistry(cfg, manager, collector)
//	if err != nil {
//	    return err
//	}
//	defer registry.Close()
//
//	orch := proxy.NewOrchestrator(registry)
//	stream, err := orch.Execute(ctx, req, proxy.CallerFrom(r))
//	if err != nil {
//	    proxy.WriteError(w, err)
//	    return
//	}
//	proxy.WriteEventStream(ctx, w, stream)
//
// # Thread Safety
//
// Registry and Orchestrator are safe for concurrent use. The event streams
// they return are owned by a single caller and are not safe for concurrent
// reads.
package proxy
