package openai

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

// eventStream reads Server-Sent Events from OpenAI's streaming API and
// yields canonical events. It implements providers.EventStream.
//
// OpenAI's protocol is data-only SSE: each frame is "data: <json>" and the
// stream ends with "data: [DONE]". The finish chunk (empty delta with a
// finish_reason) maps to the End event. With stream_options.include_usage
// set, the usage totals ride a separate choices-empty chunk after the
// finish chunk, so the End event is withheld until that chunk or [DONE]
// arrives.
type eventStream struct {
	upstream string
	body     io.ReadCloser
	cancel   context.CancelFunc
	scanner  *bufio.Scanner

	// pending holds canonical events decoded ahead of the consumer.
	pending []*providers.ChatEvent

	// pendingEnd holds the End event back until the stream finishes. With
	// stream_options.include_usage the usage totals arrive in a
	// choices-empty chunk after the finish chunk, so releasing End on the
	// finish chunk would lose them.
	pendingEnd *providers.ChatEvent

	// tool call accumulation across chunks, keyed by choice tool index
	toolNames map[int]string
	toolArgs  map[int]*strings.Builder

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
		upstream:  upstream,
		body:      body,
		cancel:    cancel,
		scanner:   scanner,
		toolNames: make(map[int]string),
		toolArgs:  make(map[int]*strings.Builder),
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

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, &providers.StreamError{
					Upstream: s.upstream,
					Message:  "failed to read stream",
					Cause:    err,
				}
			}
			// Upstream closed without [DONE].
			return nil, &providers.StreamError{
				Upstream: s.upstream,
				Message:  "stream ended before terminal event",
				Cause:    io.ErrUnexpectedEOF,
			}
		}

		line := s.scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			s.mu.Lock()
			if s.pendingEnd != nil {
				// No trailing usage chunk arrived; release End as is.
				s.pending = append(s.pending, s.pendingEnd)
				s.pendingEnd = nil
			} else if !s.endEmitted {
				// Guarantee a terminal event even when the upstream skips
				// the finish chunk.
				s.pending = append(s.pending, &providers.ChatEvent{
					Type:         providers.EventEnd,
					FinishReason: providers.FinishReasonStop,
				})
				s.endEmitted = true
			}
			s.done = true
			s.mu.Unlock()
			continue
		}

		var chunk streamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, &providers.ParseError{
				Upstream:    s.upstream,
				RawResponse: data,
				Cause:       fmt.Errorf("failed to parse stream chunk: %w", err),
			}
		}

		s.consume(&chunk)
	}
}

// consume folds one stream chunk into pending canonical events.
func (s *eventStream) consume(chunk *streamResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A usage-only chunk (empty choices) finalizes a previously seen
	// finish_reason: attach the usage to the held-back End and release it.
	if len(chunk.Choices) == 0 {
		if chunk.Usage != nil {
			s.attachUsage(chunk.Usage)
		}
		return
	}

	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		s.pending = append(s.pending, &providers.ChatEvent{
			Type: providers.EventChunk,
			Text: choice.Delta.Content,
		})
	}

	for _, tc := range choice.Delta.ToolCalls {
		if tc.Function.Name != "" {
			s.toolNames[tc.Index] = tc.Function.Name
		}
		if _, ok := s.toolArgs[tc.Index]; !ok {
			s.toolArgs[tc.Index] = &strings.Builder{}
		}
		s.toolArgs[tc.Index].WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != "" {
		s.flushToolCalls()

		end := &providers.ChatEvent{
			Type:         providers.EventEnd,
			FinishReason: normalizeFinishReason(choice.FinishReason),
		}
		if chunk.Usage != nil {
			end.Usage = &providers.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		// Held back, not released: the usage chunk follows the finish
		// chunk on the wire.
		s.pendingEnd = end
		s.endEmitted = true
	}
}

// flushToolCalls emits accumulated tool calls as canonical events, in index
// order.
func (s *eventStream) flushToolCalls() {
	maxIndex := -1
	for i := range s.toolNames {
		if i > maxIndex {
			maxIndex = i
		}
	}
	for i := range s.toolArgs {
		if i > maxIndex {
			maxIndex = i
		}
	}

	for i := 0; i <= maxIndex; i++ {
		name, named := s.toolNames[i]
		args, hasArgs := s.toolArgs[i]
		if !named && !hasArgs {
			continue
		}
		ev := &providers.ChatEvent{
			Type:     providers.EventToolCall,
			ToolName: name,
		}
		if hasArgs {
			ev.ToolArgs = args.String()
		}
		s.pending = append(s.pending, ev)
		delete(s.toolNames, i)
		delete(s.toolArgs, i)
	}
}

// attachUsage attaches usage totals to the held-back End event and releases
// it. A usage chunk with no preceding finish chunk is dropped; the [DONE]
// handler synthesizes the terminal event in that case.
func (s *eventStream) attachUsage(usage *openaiUsage) {
	if s.pendingEnd == nil {
		return
	}
	s.pendingEnd.Usage = &providers.TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	s.pending = append(s.pending, s.pendingEnd)
	s.pendingEnd = nil
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
