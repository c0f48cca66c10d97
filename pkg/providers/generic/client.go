package generic

import (
	"context"
	"log/slog"

	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/providers/openai"
)

// Adapter is the generic adapter for non-streaming OpenAI-compatible
// upstreams (Ollama, LM Studio, vLLM, FastChat, simple JSON gateways).
//
// It reuses the OpenAI wire format but always performs a blocking exchange:
// the upstream's single JSON response is replayed as a canonical stream of
// exactly one Chunk followed by one End, regardless of the caller's Stream
// flag. Callers that asked for streaming still get a well-formed (if
// single-burst) event stream.
type Adapter struct {
	*openai.Adapter
}

// New creates a new generic adapter instance.
func New(config providers.UpstreamConfig) (*Adapter, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Upstream: "generic",
			Field:    "name",
			Message:  "upstream name is required",
		}
	}

	if config.BaseURL == "" {
		return nil, &providers.ConfigError{
			Upstream: config.Name,
			Field:    "base_url",
			Message:  "base URL is required for generic upstream",
		}
	}

	// API key is optional for generic upstreams (local models don't need
	// one). Set a placeholder to satisfy the OpenAI adapter's validation.
	if config.APIKey == "" {
		config.APIKey = "not-required"
	}

	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 5
	}

	inner, err := openai.New(config)
	if err != nil {
		return nil, err
	}

	a := &Adapter{Adapter: inner}

	slog.Info("generic adapter initialized",
		"upstream", config.Name,
		"base_url", config.BaseURL,
		"type", "generic",
	)

	return a, nil
}

// Send submits a canonical request over the blocking JSON path and replays
// the result as an event stream.
func (a *Adapter) Send(ctx context.Context, req *providers.ChatRequest) (providers.EventStream, error) {
	if req != nil && req.Stream {
		// The upstream cannot stream; downgrade to a blocking exchange
		// without mutating the caller's request.
		blocking := *req
		blocking.Stream = false
		return a.Adapter.Send(ctx, &blocking)
	}
	return a.Adapter.Send(ctx, req)
}

// Type returns "generic" as the adapter type.
func (a *Adapter) Type() string {
	return "generic"
}
