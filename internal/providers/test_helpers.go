package providers

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// TestConfig returns a test upstream configuration.
func TestConfig(name, upstreamType string) providers.UpstreamConfig {
	return providers.UpstreamConfig{
		Name:                name,
		Type:                upstreamType,
		BaseURL:             "http://localhost:8080",
		APIKey:              "test-key",
		Timeout:             5 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}
}

// TestConfigWithURL returns a test config with a specific base URL.
func TestConfigWithURL(name, upstreamType, baseURL string) providers.UpstreamConfig {
	config := TestConfig(name, upstreamType)
	config.BaseURL = baseURL
	return config
}

// TestMessage creates a test message.
func TestMessage(role, content string) providers.Message {
	return providers.Message{
		Role:    role,
		Content: content,
	}
}

// TestChatRequest creates a test chat request.
func TestChatRequest(model string, messages ...providers.Message) *providers.ChatRequest {
	return &providers.ChatRequest{
		Model:    model,
		Messages: messages,
		Options: providers.Options{
			Temperature: 0.7,
			MaxTokens:   100,
		},
	}
}

// TestStreamingRequest creates a test streaming request.
func TestStreamingRequest(model string, messages ...providers.Message) *providers.ChatRequest {
	req := TestChatRequest(model, messages...)
	req.Stream = true
	return req
}

// DrainStream collects all events from a stream until io.EOF or error.
func DrainStream(t *testing.T, ctx context.Context, stream providers.EventStream) ([]*providers.ChatEvent, error) {
	t.Helper()

	var events []*providers.ChatEvent
	for {
		ev, err := stream.Next(ctx)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// ConcatChunks concatenates the text of all chunk events.
func ConcatChunks(events []*providers.ChatEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == providers.EventChunk {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String()
}

// CountTerminal counts terminal events in a drained stream.
func CountTerminal(events []*providers.ChatEvent) int {
	n := 0
	for _, ev := range events {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

// WaitForCondition waits for a condition to become true within a timeout.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, message)
		}
		<-ticker.C
	}
}
