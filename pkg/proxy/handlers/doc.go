// Package handlers provides the HTTP handlers of the bulwark proxy.
//
// The chat endpoint is the proxy's single data-plane route; liveness,
// readiness, version, and metrics endpoints live in pkg/telemetry.
//
// # Request Flow
//
// The chat handler follows one pattern:
//
//  1. Parse and validate the request body (capped at 10MB)
//  2. Adopt the middleware request ID when the body carries none
//  3. Run the request through the orchestrator's resilience pipeline
//  4. Deliver the response: SSE events or one aggregated JSON result
//  5. Map failures to the proxy error envelope
//
// # Response Shapes
//
// Streaming (request has "stream": true):
//
//	data: {"type":"chunk","text":"Hello"}
//	data: {"type":"end","finish_reason":"stop","usage":{...}}
//	data: [DONE]
//
// Non-streaming:
//
//	{"id":"...","content":"Hello...","finish_reason":"stop","usage":{...}}
//
// # Error Handling
//
// Failures before the first event map to HTTP statuses (429 rate limited,
// 503 circuit open, 502 retry exhausted, 400 invalid request). Failures
// after SSE delivery has started arrive as a terminal error event instead;
// the status line is already on the wire.
package handlers
