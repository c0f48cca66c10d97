package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/proxy"
	"palisade-hq/bulwark/pkg/proxy/middleware"
)

// stubAdapter streams a fixed result for every request.
type stubAdapter struct {
	result *providers.ChatResult
}

func (a *stubAdapter) Send(ctx context.Context, req *providers.ChatRequest) (providers.EventStream, error) {
	return providers.NewResultStream(a.result), nil
}

func (a *stubAdapter) Name() string { return "stub" }
func (a *stubAdapter) Type() string { return "stub" }
func (a *stubAdapter) Close() error { return nil }

func (a *stubAdapter) Health() providers.UpstreamHealth {
	return providers.UpstreamHealth{Healthy: true}
}

type stubSource map[string]providers.Adapter

func (s stubSource) Adapter(name string) (providers.Adapter, error) {
	adapter, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("unknown upstream %q", name)
	}
	return adapter, nil
}

func newTestHandler(t *testing.T, mutate func(*config.Config)) *ChatHandler {
	t.Helper()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if mutate != nil {
		mutate(cfg)
	}

	adapter := &stubAdapter{
		result: &providers.ChatResult{
			Content:      "The breaker opens after repeated failures.",
			FinishReason: providers.FinishReasonStop,
			Usage:        providers.TokenUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		},
	}
	registry, err := proxy.NewRegistry(cfg, stubSource{"primary": adapter}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	return NewChatHandler(proxy.NewOrchestrator(registry), cfg.Server.RequestTimeout)
}

func chatBody(stream bool, content string) string {
	return fmt.Sprintf(`{
		"upstream_id": "primary",
		"model": "claude-sonnet-4-5",
		"stream": %t,
		"messages": [{"role": "user", "content": %q}]
	}`, stream, content)
}

func TestChatHandler_NonStreaming(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(false, "hello")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result providers.ChatResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if result.Content == "" || result.FinishReason != providers.FinishReasonStop {
		t.Errorf("result = %+v", result)
	}
	if result.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want the requested model echoed", result.Model)
	}
	if result.Usage.TotalTokens != 18 {
		t.Errorf("Usage = %+v", result.Usage)
	}
}

func TestChatHandler_Streaming(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(true, "hello")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"chunk"`) || !strings.Contains(body, `"type":"end"`) {
		t.Errorf("missing events:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream not terminated:\n%s", body)
	}
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("Allow = %q, want POST", got)
	}
}

func TestChatHandler_InvalidBody(t *testing.T) {
	handler := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var reply proxy.ErrorReply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if reply.Error.Kind != "invalid_request" {
		t.Errorf("Kind = %q", reply.Error.Kind)
	}
}

func TestChatHandler_RateLimited(t *testing.T) {
	handler := newTestHandler(t, func(cfg *config.Config) {
		cfg.RateLimit.MaxRequests = 1
	})

	first := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(false, "one")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(false, "two")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 reply missing Retry-After")
	}
}

func TestChatHandler_AdoptsMiddlewareRequestID(t *testing.T) {
	handler := newTestHandler(t, nil)
	wrapped := middleware.RequestID(handler)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(false, "hello")))
	req.Header.Set(middleware.RequestIDHeader, "corr-1234")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	var result providers.ChatResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if result.ID != "corr-1234" {
		t.Errorf("result ID = %q, want the propagated request ID", result.ID)
	}
}
