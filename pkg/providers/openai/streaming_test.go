package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	testhelpers "palisade-hq/bulwark/internal/providers"
	"palisade-hq/bulwark/pkg/providers"
)

func newStreamingServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("expected Accept: text/event-stream, got %s", r.Header.Get("Accept"))
		}
		if !strings.Contains(r.Header.Get("Authorization"), "Bearer") {
			t.Error("expected Authorization header with Bearer token")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")

		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected http.ResponseWriter to be http.Flusher")
		}

		for _, chunk := range chunks {
			fmt.Fprintf(w, "%s\n\n", chunk)
			flusher.Flush()
			time.Sleep(2 * time.Millisecond)
		}
	}))
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()

	adapter, err := New(providers.UpstreamConfig{
		Name:    "openai-test",
		Type:    "openai",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestStreaming_ChunkDelivery(t *testing.T) {
	chunks := []string{
		`data: {"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}`,
		`data: {"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`,
		`data: {"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4","choices":[{"index":0,"delta":{"content":" World"},"finish_reason":null}]}`,
		`data: {"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"!"},"finish_reason":null}]}`,
		`data: {"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`,
		`data: [DONE]`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	events, err := testhelpers.DrainStream(t, ctx, stream)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if got := testhelpers.ConcatChunks(events); got != "Hello World!" {
		t.Errorf("expected %q, got %q", "Hello World!", got)
	}
	if n := testhelpers.CountTerminal(events); n != 1 {
		t.Errorf("expected exactly 1 terminal event, got %d", n)
	}

	end := events[len(events)-1]
	if end.Type != providers.EventEnd {
		t.Fatalf("expected final End event, got %s", end.Type)
	}
	if end.FinishReason != providers.FinishReasonStop {
		t.Errorf("expected finish reason stop, got %q", end.FinishReason)
	}
	if end.Usage == nil || end.Usage.TotalTokens != 13 {
		t.Errorf("expected usage total 13, got %+v", end.Usage)
	}
}

func TestStreaming_UsageChunkAfterFinish(t *testing.T) {
	// With stream_options.include_usage the upstream sends usage in a
	// choices-empty chunk after the finish chunk, which itself carries no
	// usage. The End event must still surface those totals.
	chunks := []string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":null}`,
		`data: {"id":"c1","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`,
		`data: [DONE]`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	events, err := testhelpers.DrainStream(t, ctx, stream)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if n := testhelpers.CountTerminal(events); n != 1 {
		t.Fatalf("expected exactly 1 terminal event, got %d", n)
	}

	end := events[len(events)-1]
	if end.Type != providers.EventEnd {
		t.Fatalf("expected final End event, got %s", end.Type)
	}
	if end.FinishReason != providers.FinishReasonStop {
		t.Errorf("expected finish reason stop, got %q", end.FinishReason)
	}
	if end.Usage == nil {
		t.Fatal("End event lost usage from the trailing usage chunk")
	}
	if end.Usage.TotalTokens != 9 || end.Usage.PromptTokens != 5 || end.Usage.CompletionTokens != 4 {
		t.Errorf("usage = %+v, want 5/4/9", end.Usage)
	}
}

func TestStreaming_FinishChunkWithoutUsageChunk(t *testing.T) {
	// Upstream goes straight from the finish chunk to [DONE]; the End
	// event must still be delivered, just without usage.
	chunks := []string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	events, err := testhelpers.DrainStream(t, ctx, stream)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if n := testhelpers.CountTerminal(events); n != 1 {
		t.Fatalf("expected exactly 1 terminal event, got %d", n)
	}
	end := events[len(events)-1]
	if end.FinishReason != providers.FinishReasonStop {
		t.Errorf("expected finish reason stop, got %q", end.FinishReason)
	}
	if end.Usage != nil {
		t.Errorf("expected no usage, got %+v", end.Usage)
	}
}

func TestStreaming_ToolCallAccumulation(t *testing.T) {
	chunks := []string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]},"finish_reason":null}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]},"finish_reason":null}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Weather in Paris?")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	events, err := testhelpers.DrainStream(t, ctx, stream)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var tool *providers.ChatEvent
	for _, ev := range events {
		if ev.Type == providers.EventToolCall {
			tool = ev
		}
	}
	if tool == nil {
		t.Fatal("expected a tool call event")
	}
	if tool.ToolName != "get_weather" {
		t.Errorf("expected tool name get_weather, got %q", tool.ToolName)
	}
	if tool.ToolArgs != `{"city":"Paris"}` {
		t.Errorf("expected accumulated args, got %q", tool.ToolArgs)
	}

	end := events[len(events)-1]
	if end.FinishReason != providers.FinishReasonToolCalls {
		t.Errorf("expected finish reason tool_calls, got %q", end.FinishReason)
	}
}

func TestStreaming_SynthesizedEndWithoutFinishChunk(t *testing.T) {
	chunks := []string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"partial"},"finish_reason":null}]}`,
		`data: [DONE]`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	events, err := testhelpers.DrainStream(t, ctx, stream)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if n := testhelpers.CountTerminal(events); n != 1 {
		t.Errorf("expected a synthesized terminal event, got %d", n)
	}
}

func TestStreaming_TruncatedStreamIsStreamError(t *testing.T) {
	// No [DONE], no finish chunk: the server just closes.
	chunks := []string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"partial"},"finish_reason":null}]}`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	_, err = testhelpers.DrainStream(t, ctx, stream)
	if err == nil {
		t.Fatal("expected error on truncated stream")
	}

	var streamErr *providers.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected *StreamError, got %T: %v", err, err)
	}
	if !providers.Retryable(err) {
		t.Error("truncated stream should classify as retryable")
	}
}

func TestStreaming_MalformedChunkIsParseError(t *testing.T) {
	chunks := []string{
		`data: {not json`,
	}

	server := newStreamingServer(t, chunks)
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer stream.Close()

	_, err = testhelpers.DrainStream(t, ctx, stream)

	var parseErr *providers.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if providers.Retryable(err) {
		t.Error("parse errors should not be retryable")
	}
}

func TestStreaming_CloseUnblocksAndStops(t *testing.T) {
	// Server drips chunks slowly; Close must stop delivery promptly.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"},\"finish_reason\":null}]}\n\n")
			flusher.Flush()
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx := context.Background()
	stream, err := adapter.Send(ctx, testhelpers.TestStreamingRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Read one event, then tear down.
	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := stream.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after Close, got %v", err)
	}
}
