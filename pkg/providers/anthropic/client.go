package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"palisade-hq/bulwark/pkg/providers"
)

// Adapter is the Anthropic upstream adapter.
// It implements the providers.Adapter interface for Anthropic's Messages API.
type Adapter struct {
	*providers.HTTPUpstream
}

const (
	// DefaultAnthropicVersion is the API version to use
	DefaultAnthropicVersion = "2023-06-01"
)

// New creates a new Anthropic adapter instance.
func New(config providers.UpstreamConfig) (*Adapter, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Upstream: "anthropic",
			Field:    "name",
			Message:  "upstream name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}

	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Upstream: config.Name,
			Field:    "api_key",
			Message:  "API key is required for Anthropic",
		}
	}

	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}

	a := &Adapter{
		HTTPUpstream: providers.NewHTTPUpstream(config),
	}

	slog.Info("anthropic adapter initialized",
		"upstream", config.Name,
		"base_url", config.BaseURL,
	)

	return a, nil
}

// Send submits a canonical request and returns the normalized event stream.
// Streaming requests hold the SSE connection open; non-streaming requests
// come back as a replayed stream over the aggregated result.
func (a *Adapter) Send(ctx context.Context, req *providers.ChatRequest) (providers.EventStream, error) {
	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}

	wireReq, err := transformRequest(req)
	if err != nil {
		return nil, err
	}

	if req.Stream {
		return a.sendStreaming(ctx, wireReq)
	}
	return a.sendBlocking(ctx, wireReq)
}

// sendStreaming establishes the SSE connection and wraps it in an event
// stream.
func (a *Adapter) sendStreaming(ctx context.Context, wireReq *anthropicRequest) (providers.EventStream, error) {
	wireReq.Stream = true

	bodyBytes, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", a.Config().BaseURL)
	resp, cancel, err := a.DoRequest(ctx, "POST", url, bodyBytes, a.headers(true))
	if err != nil {
		return nil, err
	}

	return newEventStream(a.Name(), resp.Body, cancel), nil
}

// sendBlocking performs a plain Messages call and replays the result as an
// event stream.
func (a *Adapter) sendBlocking(ctx context.Context, wireReq *anthropicRequest) (providers.EventStream, error) {
	wireReq.Stream = false

	url := fmt.Sprintf("%s/v1/messages", a.Config().BaseURL)
	var wireResp anthropicResponse
	if err := a.DoJSONRequest(ctx, "POST", url, wireReq, &wireResp, a.headers(false)); err != nil {
		return nil, err
	}

	result, err := transformResponse(&wireResp)
	if err != nil {
		return nil, &providers.ParseError{
			Upstream: a.Name(),
			Cause:    err,
		}
	}
	result.UpstreamID = a.Name()

	slog.Debug("messages request succeeded",
		"upstream", a.Name(),
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)

	return providers.NewResultStream(result), nil
}

// headers builds the Messages API header set.
func (a *Adapter) headers(stream bool) map[string]string {
	h := map[string]string{
		"x-api-key":         a.Config().APIKey,
		"anthropic-version": DefaultAnthropicVersion,
		"Content-Type":      "application/json",
	}
	if stream {
		h["Accept"] = "text/event-stream"
	}
	return h
}
