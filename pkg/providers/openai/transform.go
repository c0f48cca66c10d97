package openai

import (
	"errors"

	"palisade-hq/bulwark/pkg/providers"
)

var errNoChoices = errors.New("no choices in response")

// OpenAI API request/response types

// openaiRequest represents an OpenAI chat completion request.
type openaiRequest struct {
	Model         string          `json:"model"`
	Messages      []openaiMessage `json:"messages"`
	Temperature   float64         `json:"temperature,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	TopP          float64         `json:"top_p,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *streamOptions  `json:"stream_options,omitempty"`
	Stop          []string        `json:"stop,omitempty"`
	N             int             `json:"n,omitempty"`
}

// streamOptions requests usage totals on the final stream chunk.
type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// openaiMessage represents a message in OpenAI format.
type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openaiToolCall represents a tool call in OpenAI format.
type openaiToolCall struct {
	Index    int                `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openaiFunctionCall `json:"function"`
}

// openaiFunctionCall represents a function invocation in OpenAI format.
type openaiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// openaiResponse represents a non-streaming chat completion response.
type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

// openaiChoice represents a completion choice.
type openaiChoice struct {
	Index        int                 `json:"index"`
	Message      openaiChoiceMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

// openaiChoiceMessage carries the assistant message of a choice.
type openaiChoiceMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
}

// openaiUsage represents token usage in OpenAI format.
type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAI streaming types

// streamResponse represents a chunk in OpenAI's SSE stream.
type streamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
}

// streamChoice represents a choice in a stream chunk.
type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// streamDelta represents the incremental content in a stream chunk.
type streamDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
}

// Transformation functions

// transformRequest transforms a canonical request to OpenAI format.
func transformRequest(req *providers.ChatRequest) *openaiRequest {
	out := &openaiRequest{
		Model:       req.Model,
		Messages:    make([]openaiMessage, len(req.Messages)),
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		TopP:        req.Options.TopP,
		Stream:      req.Stream,
		Stop:        req.Options.Stop,
		N:           1, // always generate 1 completion
	}

	if req.Stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	for i, msg := range req.Messages {
		out.Messages[i] = openaiMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return out
}

// transformResponse transforms a non-streaming OpenAI response into the
// canonical aggregate.
func transformResponse(resp *openaiResponse) (*providers.ChatResult, error) {
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}

	// We always request N=1.
	choice := resp.Choices[0]

	result := &providers.ChatResult{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Created: resp.Created,
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, providers.ToolCall{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}

	return result, nil
}

// normalizeFinishReason normalizes OpenAI finish reasons to canonical values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop":
		return providers.FinishReasonStop
	case "length":
		return providers.FinishReasonLength
	case "tool_calls", "function_call":
		return providers.FinishReasonToolCalls
	case "content_filter":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
