package providerfactory

import (
	"fmt"
	"log/slog"

	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/providers/anthropic"
	"palisade-hq/bulwark/pkg/providers/generic"
	"palisade-hq/bulwark/pkg/providers/openai"
)

// New creates an upstream adapter from its configuration. The adapter set
// is closed and selected by a lookup on config.Type:
//
//   - "anthropic": Anthropic Messages API
//   - "openai": OpenAI Chat Completions API
//   - "generic": non-streaming JSON upstreams (Ollama, vLLM, LM Studio, ...)
//
// Example:
//
//	adapter, err := providerfactory.New(providers.UpstreamConfig{
//	    Name:   "anthropic-primary",
//	    Type:   "anthropic",
//	    APIKey: apiKey,
//	})
//	if err != nil {
//	    return err
//	}
//	defer adapter.Close()
func New(config providers.UpstreamConfig) (providers.Adapter, error) {
	var adapter providers.Adapter
	var err error

	switch config.Type {
	case "anthropic":
		adapter, err = anthropic.New(config)

	case "openai":
		adapter, err = openai.New(config)

	case "generic":
		adapter, err = generic.New(config)

	default:
		return nil, &providers.ConfigError{
			Upstream: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported adapter type %q (supported: anthropic, openai, generic)", config.Type),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create upstream adapter %q: %w", config.Name, err)
	}

	slog.Debug("upstream adapter created",
		"name", config.Name,
		"type", config.Type,
		"base_url", config.BaseURL,
	)

	return adapter, nil
}
