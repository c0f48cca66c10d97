package anthropic

import (
	"encoding/json"
	"fmt"

	"palisade-hq/bulwark/pkg/providers"
)

// Anthropic API request/response types

// anthropicRequest represents an Anthropic messages request.
type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature,omitempty"`
	TopP          float64            `json:"top_p,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

// anthropicMessage represents a message in Anthropic format.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// contentBlock represents a content block in an Anthropic response.
type contentBlock struct {
	Type string `json:"type"` // "text", "thinking" or "tool_use"
	Text string `json:"text,omitempty"`

	// For thinking blocks
	Thinking string `json:"thinking,omitempty"`

	// For tool_use blocks
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// anthropicResponse represents an Anthropic messages response.
type anthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []contentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        anthropicUsage `json:"usage"`
}

// anthropicUsage represents token usage in Anthropic format.
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Anthropic streaming types

// streamEvent represents one event in Anthropic's SSE stream.
type streamEvent struct {
	Type string `json:"type"`

	// For message_start
	Message *anthropicResponse `json:"message,omitempty"`

	// For content_block_start
	Index        int           `json:"index"`
	ContentBlock *contentBlock `json:"content_block,omitempty"`

	// For content_block_delta and message_delta
	Delta *eventDelta `json:"delta,omitempty"`

	// For message_delta
	Usage *anthropicUsage `json:"usage,omitempty"`
}

// eventDelta carries the incremental payload of a delta event. Block deltas
// and message deltas share the "delta" key on the wire, so both field sets
// live here.
type eventDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`

	// Message-level delta fields
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// Transformation functions

// transformRequest transforms a canonical request to Anthropic format.
func transformRequest(req *providers.ChatRequest) (*anthropicRequest, error) {
	out := &anthropicRequest{
		Model:         req.Model,
		Messages:      make([]anthropicMessage, 0, len(req.Messages)),
		MaxTokens:     req.Options.MaxTokens,
		Temperature:   req.Options.Temperature,
		TopP:          req.Options.TopP,
		Stream:        req.Stream,
		StopSequences: req.Options.Stop,
	}

	// max_tokens is required by the Messages API.
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}

	// System messages live in a separate field.
	for _, msg := range req.Messages {
		if msg.Role == providers.RoleSystem {
			out.System = msg.Content
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if err := validateMessageSequence(out.Messages); err != nil {
		return nil, err
	}

	return out, nil
}

// validateMessageSequence validates that messages alternate between user and
// assistant, starting with user.
func validateMessageSequence(messages []anthropicMessage) error {
	if len(messages) == 0 {
		return nil
	}

	if messages[0].Role != providers.RoleUser {
		return &providers.ValidationError{
			Field:   "messages",
			Message: "first message must be from user (Anthropic requirement)",
		}
	}

	for i := 1; i < len(messages); i++ {
		if messages[i-1].Role == messages[i].Role {
			return &providers.ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("messages must alternate between user and assistant (Anthropic requirement), found consecutive %s messages at index %d", messages[i].Role, i),
			}
		}
	}

	return nil
}

// transformResponse transforms a non-streaming Anthropic response into the
// canonical aggregate.
func transformResponse(resp *anthropicResponse) (*providers.ChatResult, error) {
	result := &providers.ChatResult{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: normalizeStopReason(resp.StopReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text

		case "tool_use":
			args, err := jsonMarshalString(block.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			result.ToolCalls = append(result.ToolCalls, providers.ToolCall{
				Name: block.Name,
				Args: args,
			})
		}
	}

	return result, nil
}

// jsonMarshalString marshals a tool input map to its JSON string form.
func jsonMarshalString(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// normalizeStopReason normalizes Anthropic stop reasons to canonical values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	default:
		return reason
	}
}
