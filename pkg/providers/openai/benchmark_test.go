package openai

import (
	"context"
	"testing"

	testhelpers "palisade-hq/bulwark/internal/providers"
	"palisade-hq/bulwark/pkg/providers"
)

func BenchmarkAdapter_SendBlocking(b *testing.B) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/v1/chat/completions", testhelpers.MockResponse{
		StatusCode: 200,
		Body:       testhelpers.MockOpenAIResponse("Hello, world!", "gpt-4"),
	})

	adapter, err := New(testhelpers.TestConfigWithURL("openai", "openai", mock.URL()+"/v1"))
	if err != nil {
		b.Fatalf("failed to create adapter: %v", err)
	}
	defer adapter.Close()

	req := testhelpers.TestChatRequest("gpt-4",
		testhelpers.TestMessage(providers.RoleUser, "Hello"))

	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		stream, err := adapter.Send(ctx, req)
		if err != nil {
			b.Fatalf("Send failed: %v", err)
		}
		if _, err := providers.Collect(ctx, "openai", stream); err != nil {
			b.Fatalf("Collect failed: %v", err)
		}
	}
}

func BenchmarkTransformRequest(b *testing.B) {
	req := &providers.ChatRequest{
		Model: "gpt-4",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "You are a helpful assistant"},
			{Role: providers.RoleUser, Content: "Hello"},
		},
		Options: providers.Options{
			Temperature: 0.7,
			MaxTokens:   100,
		},
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = transformRequest(req)
	}
}

func BenchmarkFingerprint(b *testing.B) {
	req := &providers.ChatRequest{
		RequestID: "req-1",
		Model:     "gpt-4",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "You are a helpful assistant"},
			{Role: providers.RoleUser, Content: "Hello"},
		},
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = req.Fingerprint()
	}
}
