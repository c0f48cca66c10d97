package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"palisade-hq/bulwark/pkg/providers"
)

// eventStream reads Server-Sent Events from Anthropic's streaming API and
// yields canonical events. It implements providers.EventStream.
type eventStream struct {
	upstream string
	body     io.ReadCloser
	cancel   context.CancelFunc
	scanner  *bufio.Scanner

	// pending holds events decoded ahead of the consumer (one SSE event can
	// expand into more than one canonical event).
	pending []*providers.ChatEvent

	// tool accumulation across content_block events
	toolName string
	toolArgs strings.Builder
	inTool   bool

	// finish/usage arrive in message_delta; the End event is emitted there
	done       bool
	endEmitted bool

	mu     sync.Mutex
	closed bool
}

// newEventStream wraps an established SSE response body.
func newEventStream(upstream string, body io.ReadCloser, cancel context.CancelFunc) *eventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &eventStream{
		upstream: upstream,
		body:     body,
		cancel:   cancel,
		scanner:  scanner,
	}
}

// Next returns the next canonical event, or io.EOF after the terminal event.
func (s *eventStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, io.EOF
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.done {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.mu.Unlock()

		event, err := s.readEvent()
		if err != nil {
			if err == io.EOF {
				// Upstream closed without message_stop.
				if !s.done {
					return nil, &providers.StreamError{
						Upstream: s.upstream,
						Message:  "stream ended before terminal event",
						Cause:    io.ErrUnexpectedEOF,
					}
				}
				return nil, io.EOF
			}
			return nil, err
		}
		if event == nil {
			continue
		}

		if err := s.consume(event); err != nil {
			return nil, err
		}
	}
}

// consume folds one SSE event into pending canonical events.
func (s *eventStream) consume(event *streamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case "message_start", "ping":
		// No canonical event.

	case "content_block_start":
		if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
			s.inTool = true
			s.toolName = event.ContentBlock.Name
			s.toolArgs.Reset()
		}

	case "content_block_delta":
		if event.Delta == nil {
			return nil
		}
		switch event.Delta.Type {
		case "text_delta":
			s.pending = append(s.pending, &providers.ChatEvent{
				Type: providers.EventChunk,
				Text: event.Delta.Text,
			})
		case "thinking_delta":
			s.pending = append(s.pending, &providers.ChatEvent{
				Type: providers.EventReasoning,
				Step: event.Delta.Thinking,
			})
		case "input_json_delta":
			if s.inTool {
				s.toolArgs.WriteString(event.Delta.PartialJSON)
			}
		}

	case "content_block_stop":
		if s.inTool {
			s.pending = append(s.pending, &providers.ChatEvent{
				Type:     providers.EventToolCall,
				ToolName: s.toolName,
				ToolArgs: s.toolArgs.String(),
			})
			s.inTool = false
		}

	case "message_delta":
		end := &providers.ChatEvent{Type: providers.EventEnd}
		if event.Delta != nil {
			end.FinishReason = normalizeStopReason(event.Delta.StopReason)
		}
		if event.Usage != nil {
			end.Usage = &providers.TokenUsage{
				PromptTokens:     event.Usage.InputTokens,
				CompletionTokens: event.Usage.OutputTokens,
				TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
			}
		}
		s.pending = append(s.pending, end)
		s.endEmitted = true
		s.done = true

	case "message_stop":
		// Guarantee a terminal event even when the upstream skips
		// message_delta.
		if !s.endEmitted {
			s.pending = append(s.pending, &providers.ChatEvent{
				Type:         providers.EventEnd,
				FinishReason: providers.FinishReasonStop,
			})
			s.endEmitted = true
		}
		s.done = true

	case "error":
		return &providers.StreamError{
			Upstream: s.upstream,
			Message:  "upstream reported stream error",
		}

	default:
		return &providers.ParseError{
			Upstream: s.upstream,
			Cause:    fmt.Errorf("unknown stream event type: %s", event.Type),
		}
	}

	return nil
}

// readEvent reads one complete SSE event (event: + data: lines up to the
// blank separator).
func (s *eventStream) readEvent() (*streamEvent, error) {
	var eventType string
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				break
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		}
		// Ignore other SSE fields (id, retry).
	}

	if err := s.scanner.Err(); err != nil {
		return nil, &providers.StreamError{
			Upstream: s.upstream,
			Message:  "failed to read stream",
			Cause:    err,
		}
	}

	if eventType == "" && len(dataLines) == 0 {
		return nil, io.EOF
	}

	var event streamEvent
	if len(dataLines) > 0 {
		data := strings.Join(dataLines, "\n")
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil, &providers.ParseError{
				Upstream:    s.upstream,
				RawResponse: data,
				Cause:       fmt.Errorf("failed to parse stream event: %w", err),
			}
		}
	}
	if eventType != "" && event.Type == "" {
		event.Type = eventType
	}

	return &event, nil
}

// Close tears down the upstream connection. A blocked Next unblocks with an
// error; no further events are produced.
func (s *eventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	return err
}
