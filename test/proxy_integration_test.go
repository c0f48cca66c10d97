//go:build integration

package test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	upstreammock "palisade-hq/bulwark/internal/providers"
	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/providerfactory"
	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/proxy"
	"palisade-hq/bulwark/pkg/server"
)

// TestProxyIntegration exercises the end-to-end flow: HTTP request in,
// resilience pipeline, adapter exchange against a mock upstream, response out.
func TestProxyIntegration(t *testing.T) {
	upstream := upstreammock.NewMockServer()
	defer upstream.Close()

	upstream.SetResponse("/chat/completions", upstreammock.MockResponse{
		StatusCode: http.StatusOK,
		Body:       upstreammock.MockOpenAIResponse("Hello from the upstream.", "gpt-4"),
	})

	cfg := &config.Config{
		Upstreams: map[string]config.UpstreamConfig{
			"primary": {Type: "generic", BaseURL: upstream.URL(), TimeoutMs: 5000},
		},
	}
	config.ApplyDefaults(cfg)

	manager, err := providerfactory.NewManagerFromConfig(cfg.Upstreams)
	if err != nil {
		t.Fatalf("NewManagerFromConfig: %v", err)
	}
	defer manager.Close()

	registry, err := proxy.NewRegistry(cfg, manager, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer registry.Close()

	srv := server.New(cfg, registry, manager, server.BuildInfo{Version: "integration"})
	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	chatBody := func(stream bool, content string) string {
		body, _ := json.Marshal(map[string]interface{}{
			"upstream_id": "primary",
			"model":       "gpt-4",
			"stream":      stream,
			"messages": []map[string]string{
				{"role": "user", "content": content},
			},
		})
		return string(body)
	}

	t.Run("chat completion request", func(t *testing.T) {
		resp, err := http.Post(testServer.URL+"/v1/chat", "application/json",
			strings.NewReader(chatBody(false, "Hello, world!")))
		if err != nil {
			t.Fatalf("sending request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var result providers.ChatResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if result.Content != "Hello from the upstream." {
			t.Errorf("Content = %q", result.Content)
		}
		if result.FinishReason != providers.FinishReasonStop {
			t.Errorf("FinishReason = %q", result.FinishReason)
		}
		if result.Usage.TotalTokens != 30 {
			t.Errorf("Usage = %+v", result.Usage)
		}
		if result.ID == "" {
			t.Error("result carries no request ID")
		}
	})

	t.Run("streaming request", func(t *testing.T) {
		resp, err := http.Post(testServer.URL+"/v1/chat", "application/json",
			strings.NewReader(chatBody(true, "Stream, please")))
		if err != nil {
			t.Fatalf("sending request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
			t.Errorf("Content-Type = %q", got)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if !strings.Contains(string(body), `"type":"chunk"`) {
			t.Errorf("no chunk event in stream:\n%s", body)
		}
		if !strings.HasSuffix(string(body), "data: [DONE]\n\n") {
			t.Errorf("stream not terminated:\n%s", body)
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		resp, err := http.Post(testServer.URL+"/v1/chat", "application/json",
			strings.NewReader(`{"upstream_id": "primary", "messages": []}`))
		if err != nil {
			t.Fatalf("sending request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}

		var reply proxy.ErrorReply
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			t.Fatalf("decoding error reply: %v", err)
		}
		if reply.Error.Kind != "invalid_request" {
			t.Errorf("error kind = %q, want invalid_request", reply.Error.Kind)
		}
	})

	t.Run("unknown upstream", func(t *testing.T) {
		resp, err := http.Post(testServer.URL+"/v1/chat", "application/json",
			strings.NewReader(`{"upstream_id": "nope", "model": "m", "messages": [{"role": "user", "content": "hi"}]}`))
		if err != nil {
			t.Fatalf("sending request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("health check", func(t *testing.T) {
		resp, err := http.Get(testServer.URL + "/health")
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readiness check", func(t *testing.T) {
		resp, err := http.Get(testServer.URL + "/ready")
		if err != nil {
			t.Fatalf("readiness check: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		resp, err := http.Get(testServer.URL + cfg.Telemetry.Metrics.Path)
		if err != nil {
			t.Fatalf("metrics: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}

// TestProxyIntegration_UpstreamFailure drives the retry path against an
// upstream that always returns 500 and expects a 502 with the retry
// exhaustion kind.
func TestProxyIntegration_UpstreamFailure(t *testing.T) {
	upstream := upstreammock.NewMockServer()
	defer upstream.Close()
	upstream.SetResponse("/chat/completions", upstreammock.MockServerError())

	cfg := &config.Config{
		Upstreams: map[string]config.UpstreamConfig{
			"primary": {Type: "generic", BaseURL: upstream.URL(), TimeoutMs: 5000},
		},
	}
	config.ApplyDefaults(cfg)
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelayMs = 1
	cfg.Retry.MaxDelayMs = 2
	cfg.Breaker.FailureThreshold = 10

	manager, err := providerfactory.NewManagerFromConfig(cfg.Upstreams)
	if err != nil {
		t.Fatalf("NewManagerFromConfig: %v", err)
	}
	defer manager.Close()

	registry, err := proxy.NewRegistry(cfg, manager, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer registry.Close()

	srv := server.New(cfg, registry, manager, server.BuildInfo{Version: "integration"})
	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	resp, err := http.Post(testServer.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"upstream_id": "primary", "model": "m", "messages": [{"role": "user", "content": "hi"}]}`))
	if err != nil {
		t.Fatalf("sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	var reply proxy.ErrorReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decoding error reply: %v", err)
	}
	if reply.Error.Kind != "retry_exhausted" {
		t.Errorf("error kind = %q, want retry_exhausted", reply.Error.Kind)
	}
	if upstream.RequestCount() != 2 {
		t.Errorf("upstream saw %d requests, want 2", upstream.RequestCount())
	}
}
