package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"palisade-hq/bulwark/pkg/providers"
)

// Adapter is the OpenAI upstream adapter.
// It implements the providers.Adapter interface for OpenAI's Chat
// Completions API and any OpenAI-compatible upstream.
type Adapter struct {
	*providers.HTTPUpstream
}

// New creates a new OpenAI adapter instance.
func New(config providers.UpstreamConfig) (*Adapter, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Upstream: "openai",
			Field:    "name",
			Message:  "upstream name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}

	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Upstream: config.Name,
			Field:    "api_key",
			Message:  "API key is required for OpenAI",
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

	slog.Info("openai adapter initialized",
		"upstream", config.Name,
		"base_url", config.BaseURL,
	)

	return a, nil
}

// Send submits a canonical request and returns the normalized event stream.
func (a *Adapter) Send(ctx context.Context, req *providers.ChatRequest) (providers.EventStream, error) {
	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}

	wireReq := transformRequest(req)

	if req.Stream {
		return a.sendStreaming(ctx, wireReq)
	}
	return a.sendBlocking(ctx, wireReq)
}

// sendStreaming establishes the SSE connection and wraps it in an event
// stream.
func (a *Adapter) sendStreaming(ctx context.Context, wireReq *openaiRequest) (providers.EventStream, error) {
	wireReq.Stream = true
	if wireReq.StreamOptions == nil {
		wireReq.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	bodyBytes, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", a.Config().BaseURL)
	resp, cancel, err := a.DoRequest(ctx, "POST", url, bodyBytes, a.headers(true))
	if err != nil {
		return nil, err
	}

	return newEventStream(a.Name(), resp.Body, cancel), nil
}

// sendBlocking performs a plain chat completion call and replays the result
// as an event stream.
func (a *Adapter) sendBlocking(ctx context.Context, wireReq *openaiRequest) (providers.EventStream, error) {
	wireReq.Stream = false
	wireReq.StreamOptions = nil

	url := fmt.Sprintf("%s/chat/completions", a.Config().BaseURL)
	var wireResp openaiResponse
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

	slog.Debug("chat completion succeeded",
		"upstream", a.Name(),
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)

	return providers.NewResultStream(result), nil
}

// headers builds the Chat Completions header set.
func (a *Adapter) headers(stream bool) map[string]string {
	h := map[string]string{
		"Authorization": "Bearer " + a.Config().APIKey,
		"Content-Type":  "application/json",
	}
	if stream {
		h["Accept"] = "text/event-stream"
	}
	return h
}
