// Package providers implements the canonical chat model and the upstream
// adapter layer of the Bulwark proxy.
//
// # Overview
//
// Every third-party AI chat-completion service ("upstream") speaks its own
// wire protocol, streaming format, and error dialect. The providers package
// hides all of that behind two canonical types, ChatRequest going in and a
// finite stream of ChatEvent values coming out, so the rest of the proxy
// never sees provider-specific shapes.
//
// # Architecture
//
// The package is organized into several layers:
//
//  1. Canonical model - ChatRequest, ChatEvent, ChatResult and friends
//  2. Adapter interface - the contract every upstream adapter implements
//  3. Base HTTP provider - shared HTTP client logic (pooling, hard timeouts,
//     typed error mapping)
//  4. Adapters - provider-specific subpackages (openai, anthropic, generic)
//
// # Basic Usage
//
// Create an adapter and send a request:
//
//	cfg := providers.UpstreamConfig{
//	    Name:    "anthropic",
//	    Type:    "anthropic",
//	    BaseURL: "https://api.anthropic.com",
//	    APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
//	    Timeout: 60 * time.Second,
//	}
//
//	adapter, err := anthropic.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close()
//
//	req := &providers.ChatRequest{
//	    UpstreamID: "anthropic",
//	    Model:      "claude-sonnet-4-5",
//	    Messages: []providers.Message{
//	        {Role: providers.RoleUser, Content: "Hello!"},
//	    },
//	    Stream: true,
//	}
//
//	stream, err := adapter.Send(ctx, req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//
//	for {
//	    ev, err := stream.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if ev.Type == providers.EventChunk {
//	        fmt.Print(ev.Text)
//	    }
//	}
//
// # Event Streams
//
// EventStream is a lazy, finite, non-restartable iterator. Next blocks until
// the next canonical event arrives from the upstream and returns io.EOF after
// the terminal event. Close tears down the underlying connection promptly;
// no further events are produced after Close returns.
//
// Non-streaming upstreams still produce an event stream: exactly one Chunk
// carrying the full response text followed by one End carrying usage totals.
//
// # Error Handling
//
// The package defines specific error types for common failure scenarios:
//
//   - ProviderError: General upstream errors (carries the HTTP status)
//   - AuthError: Authentication failures (HTTP 401/403)
//   - RateLimitError: Upstream rate limit exceeded (HTTP 429)
//   - TimeoutError: Hard per-call timeout elapsed
//   - ParseError: Malformed upstream response or stream frame
//   - StreamError: Transport failure mid-stream
//   - ValidationError: Invalid canonical request
//   - ConfigError: Invalid upstream configuration
//
// Retryable classifies any error into retryable (timeouts, connection
// resets, 429, 5xx) or terminal (auth, validation, parse, other 4xx). The
// retry executor consults this predicate instead of matching on messages.
//
// # Thread Safety
//
// Adapters are safe for concurrent use. A single EventStream must only be
// consumed by one goroutine; the proxy's broadcast layer handles fanout.
package providers
