package providers

import "context"

// Adapter is the core interface every upstream adapter implements. It
// provides a unified abstraction over different chat-completion services
// (OpenAI-compatible, Anthropic, generic JSON upstreams).
//
// All methods accept a context.Context for cancellation and timeout control.
// Implementations must respect context cancellation and return promptly when
// the context is cancelled.
//
// Example usage:
//
//	adapter, err := openai.New(cfg)
//	if err != nil {
//	    return err
//	}
//
//	req := &providers.ChatRequest{
//	    Model: "gpt-4",
//	    Messages: []providers.Message{
//	        {Role: providers.RoleUser, Content: "Hello!"},
//	    },
//	}
//
//	stream, err := adapter.Send(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
type Adapter interface {
	// Send submits a canonical chat request to the upstream and returns the
	// normalized event stream. The request is transformed to the upstream's
	// wire format; the response, streaming or not, always comes back as a
	// finite stream of canonical events ending in exactly one terminal event.
	//
	// Send returns an error only when the request could not be established
	// (validation, connect, auth, upstream rejection). Failures after the
	// stream is established surface as in-stream Error events or as errors
	// from EventStream.Next.
	Send(ctx context.Context, req *ChatRequest) (EventStream, error)

	// Name returns the adapter's configured name (e.g. "openai", "anthropic").
	Name() string

	// Type returns the adapter implementation type (openai, anthropic, generic).
	Type() string

	// Health returns the adapter's request-level health snapshot.
	Health() UpstreamHealth

	// Close releases the adapter's resources (HTTP connections, etc.).
	// After Close the adapter must not be used.
	Close() error
}

// EventStream is the iterator over a single upstream exchange. Streams are
// lazy, finite, and not restartable: events are produced on demand, in
// upstream order, and after the terminal event Next returns io.EOF.
//
// A single EventStream must only be consumed by one goroutine.
type EventStream interface {
	// Next blocks until the next canonical event is available.
	// Returns nil and io.EOF after the terminal event.
	// Returns nil and a typed error on transport or protocol failure.
	Next(ctx context.Context) (*ChatEvent, error)

	// Close tears down the underlying connection. No further events are
	// produced after Close returns; a blocked Next unblocks with an error.
	Close() error
}
