package proxy

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/ratelimit"
)

func TestWriteError_RetryAfterHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteError(rec, &RateLimitedError{
		Decision: ratelimit.Decision{Dimension: "user", RetryAfter: 2500 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	if rec.Code != 429 {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	// 2.5s rounds up; a client sleeping the advertised time must not
	// get rejected again.
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, want 3", got)
	}

	var reply ErrorReply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if reply.Error.Kind != "rate_limited" {
		t.Errorf("Kind = %q", reply.Error.Kind)
	}
}

func TestWriteError_NoRetryAfterWithoutHint(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, &RequestError{Field: "model", Message: "model is required"})

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After = %q, want unset", got)
	}
}

func TestWriteEventStream(t *testing.T) {
	stream := providers.NewResultStream(&providers.ChatResult{
		Content:      "streamed text",
		FinishReason: providers.FinishReasonStop,
		Usage:        providers.TokenUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	})

	rec := httptest.NewRecorder()
	if err := WriteEventStream(context.Background(), rec, stream); err != nil {
		t.Fatalf("WriteEventStream: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream not terminated with [DONE]:\n%s", body)
	}

	var events []providers.ChatEvent
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok || payload == "[DONE]" {
			continue
		}
		var ev providers.ChatEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad SSE payload %q: %v", payload, err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want chunk+end", len(events))
	}
	if events[0].Type != providers.EventChunk || events[0].Text != "streamed text" {
		t.Errorf("chunk = %+v", events[0])
	}
	if events[1].Type != providers.EventEnd || events[1].Usage == nil {
		t.Errorf("end = %+v", events[1])
	}
}

// failingStream yields one chunk, then fails.
type failingStream struct {
	sent bool
	err  error
}

func (s *failingStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	if !s.sent {
		s.sent = true
		return &providers.ChatEvent{Type: providers.EventChunk, Text: "partial"}, nil
	}
	return nil, s.err
}

func (s *failingStream) Close() error { return nil }

func TestWriteEventStream_MidStreamFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := &failingStream{err: &providers.UpstreamError{Upstream: "primary", Message: "connection lost"}}

	if err := WriteEventStream(context.Background(), rec, stream); err != nil {
		t.Fatalf("WriteEventStream: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) {
		t.Errorf("mid-stream failure not delivered as error event:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("failed stream still needs the [DONE] marker:\n%s", body)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	result := &providers.ChatResult{ID: "r-1", Content: "hi", FinishReason: providers.FinishReasonStop}

	if err := WriteJSON(rec, 200, result); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var decoded providers.ChatResult
	if err := json.NewDecoder(rec.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if decoded.ID != "r-1" || decoded.Content != "hi" {
		t.Errorf("round trip = %+v", decoded)
	}
}
