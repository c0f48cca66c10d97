package providers

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// Collect drains an event stream and aggregates it into a ChatResult.
// It consumes the stream to completion (or error) and closes it.
//
// Chunk text is concatenated in arrival order; tool calls are collected;
// usage and finish reason come from the terminal End event. An in-stream
// Error event aborts collection and surfaces as an UpstreamError.
func Collect(ctx context.Context, upstream string, stream EventStream) (*ChatResult, error) {
	defer stream.Close()

	var content strings.Builder
	result := &ChatResult{
		UpstreamID: upstream,
		Created:    time.Now().Unix(),
	}

	for {
		ev, err := stream.Next(ctx)
		if err == io.EOF {
			result.Content = content.String()
			return result, nil
		}
		if err != nil {
			return nil, err
		}

		switch ev.Type {
		case EventChunk:
			content.WriteString(ev.Text)
		case EventToolCall:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Name: ev.ToolName,
				Args: ev.ToolArgs,
			})
		case EventEnd:
			if ev.Usage != nil {
				result.Usage = *ev.Usage
			}
			result.FinishReason = ev.FinishReason
			result.FallbackUsed = ev.FallbackUsed
		case EventError:
			return nil, &UpstreamError{
				Upstream: upstream,
				Message:  ev.Message,
			}
		}
		// Reasoning and Status events carry no aggregate state.
	}
}

// resultStream replays a finished ChatResult as a canonical event stream:
// one Chunk per tool-call-free response, tool-call events, then exactly one
// End. Used for non-streaming upstream bodies and fallback cache replay.
type resultStream struct {
	events []ChatEvent
	pos    int
	mu     sync.Mutex
	closed bool
}

// NewResultStream builds an event stream that replays result. The round
// trip Collect(NewResultStream(r)) reproduces r's content, tool calls,
// usage, and finish reason.
func NewResultStream(result *ChatResult) EventStream {
	events := make([]ChatEvent, 0, len(result.ToolCalls)+2)

	if result.Content != "" {
		events = append(events, ChatEvent{
			Type: EventChunk,
			Text: result.Content,
		})
	}
	for _, tc := range result.ToolCalls {
		events = append(events, ChatEvent{
			Type:     EventToolCall,
			ToolName: tc.Name,
			ToolArgs: tc.Args,
		})
	}

	usage := result.Usage
	events = append(events, ChatEvent{
		Type:         EventEnd,
		FinishReason: result.FinishReason,
		Usage:        &usage,
		FallbackUsed: result.FallbackUsed,
	})

	return &resultStream{events: events}
}

// Next returns the next replayed event, or io.EOF after the terminal event.
func (s *resultStream) Next(ctx context.Context) (*ChatEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pos >= len(s.events) {
		return nil, io.EOF
	}

	ev := s.events[s.pos]
	s.pos++
	return &ev, nil
}

// Close marks the stream finished. Subsequent Next calls return io.EOF.
func (s *resultStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
