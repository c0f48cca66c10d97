// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware functions applied to every route of the
// bulwark proxy: request ID generation, structured request logging, and panic
// recovery.
//
// # Middleware Chain
//
// Middleware functions are chained outermost to innermost:
//
//	handler = Recovery(RequestID(Logging(handler)))
//
// Recovery sits outermost so a panic anywhere below it still produces a
// well-formed 500. RequestID runs before Logging so the completion log line
// carries the ID. The server wires the chain; see pkg/server.
//
// # Request ID
//
// RequestID assigns a UUID v4 to each request:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The request ID is:
//   - Added to context for handler access
//   - Included in response headers
//   - Logged with all request/response logs
//
// A client-supplied X-Request-ID is honored for cross-system correlation.
//
// # Logging
//
// Logging records each exchange with log/slog:
//
//	{
//	  "time": "2026-08-24T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/v1/chat",
//	  "status": 200,
//	  "latency_ms": 1250,
//	  "request_id": "550e8400-e29b-41d4-a716-446655440000"
//	}
//
// 4xx responses log at warn, 5xx at error. The status-capturing response
// writer forwards Flush so SSE streaming works through the chain.
//
// # Recovery
//
// Recovery catches handler panics and converts them to the proxy's error
// envelope:
//
//	{"error": {"kind": "internal", "message": "an internal error occurred"}}
//
// The panic value and stack trace are logged, never exposed to clients.
//
// # Thread Safety
//
// All middleware functions are safe for concurrent use.
package middleware
