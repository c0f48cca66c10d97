package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Message represents a single message in a conversation.
// It is provider-agnostic and is transformed to provider-specific formats
// by each adapter.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`

	// Attachments carries optional non-text payloads attached to the message
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is an opaque payload attached to a message (image, file, ...).
// Adapters that do not understand an attachment type must ignore it rather
// than fail the request.
type Attachment struct {
	// Type identifies the attachment kind (e.g. "image_url", "file")
	Type string `json:"type"`

	// URL points at the attachment content
	URL string `json:"url,omitempty"`

	// Name is an optional display name
	Name string `json:"name,omitempty"`
}

// Options carries the tunable generation parameters of a request.
// Zero values mean "use the upstream's default".
type Options struct {
	// Temperature controls randomness (0.0 to 2.0, typically 0.0 to 1.0)
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0)
	TopP float64 `json:"top_p,omitempty"`

	// Stop sequences that will halt generation
	Stop []string `json:"stop,omitempty"`

	// Extra holds provider-specific passthrough options
	Extra map[string]string `json:"extra,omitempty"`
}

// ChatRequest is the canonical, provider-agnostic chat request.
//
// A ChatRequest is immutable once handed to the proxy: components read it but
// never modify it. RequestID is the only volatile field; it identifies one
// caller attempt and is excluded from the request fingerprint so that
// identical requests from different callers coalesce.
type ChatRequest struct {
	// RequestID uniquely identifies this caller attempt
	RequestID string `json:"request_id"`

	// UpstreamID selects the upstream adapter (e.g. "openai", "anthropic")
	UpstreamID string `json:"upstream_id"`

	// Model is the model identifier (e.g. "gpt-4", "claude-sonnet-4-5")
	Model string `json:"model"`

	// Messages is the ordered conversation history
	Messages []Message `json:"messages"`

	// Stream requests incremental delivery of the response
	Stream bool `json:"stream,omitempty"`

	// Options carries generation parameters
	Options Options `json:"options,omitempty"`
}

// Fingerprint returns the deterministic content hash of the request,
// excluding RequestID. Two requests with equal fingerprints are duplicates
// for the purposes of in-flight coalescing and fallback caching.
func (r *ChatRequest) Fingerprint() string {
	// The fingerprint must not change when only the volatile RequestID
	// differs, so hash a copy with the field cleared.
	shadow := *r
	shadow.RequestID = ""

	data, err := json.Marshal(&shadow)
	if err != nil {
		// Marshalling a ChatRequest cannot fail (no channels, funcs, or
		// cycles), but hash the empty payload rather than panic.
		data = nil
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EventType discriminates the variants of the ChatEvent tagged union.
type EventType string

const (
	// EventChunk carries incremental response text.
	EventChunk EventType = "chunk"

	// EventReasoning carries an intermediate reasoning step.
	EventReasoning EventType = "reasoning"

	// EventStatus reports a pipeline state transition.
	EventStatus EventType = "status"

	// EventToolCall carries a tool/function invocation request.
	EventToolCall EventType = "tool_call"

	// EventError is a terminal event reporting a failure.
	EventError EventType = "error"

	// EventEnd is the terminal event of a successful stream.
	EventEnd EventType = "end"
)

// Pipeline state names carried by Status events.
const (
	// StateRetrying reports a re-dial after a retryable establishment
	// failure.
	StateRetrying = "retrying"

	// StateDegraded reports that the stream replays a cached result after
	// retry exhaustion.
	StateDegraded = "degraded"
)

// ChatEvent is the canonical streaming unit: a tagged union produced lazily
// by adapters and consumed in upstream order. Streams are finite and not
// restartable; exactly one terminal event (End or Error) closes each stream.
type ChatEvent struct {
	// Type selects the populated variant below
	Type EventType `json:"type"`

	// Text is the incremental content (chunk)
	Text string `json:"text,omitempty"`

	// Step is the reasoning step content (reasoning)
	Step string `json:"step,omitempty"`

	// State is the pipeline state name (status)
	State string `json:"state,omitempty"`

	// ToolName and ToolArgs describe a tool invocation (tool_call)
	ToolName string `json:"tool_name,omitempty"`
	ToolArgs string `json:"tool_args,omitempty"`

	// ErrKind and Message describe a failure (error)
	ErrKind string `json:"err_kind,omitempty"`
	Message string `json:"message,omitempty"`

	// FinishReason and Usage summarize a completed stream (end)
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`

	// FallbackUsed marks a terminal event synthesized from a cached
	// response after retry exhaustion (end)
	FallbackUsed bool `json:"fallback_used,omitempty"`
}

// Terminal reports whether the event closes its stream.
func (e *ChatEvent) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens used (prompt + completion)
	TotalTokens int `json:"total_tokens"`
}

// ToolCall is an aggregated tool invocation extracted from a finished stream.
type ToolCall struct {
	// Name is the tool/function name
	Name string `json:"name"`

	// Args is a JSON string containing the invocation arguments
	Args string `json:"args"`
}

// ChatResult is the aggregation of a finished event stream. It backs the
// non-streaming response body and the fallback cache.
type ChatResult struct {
	// ID is the unique response identifier
	ID string `json:"id"`

	// UpstreamID names the upstream that produced the response
	UpstreamID string `json:"upstream_id"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// Content is the concatenated response text
	Content string `json:"content"`

	// ToolCalls contains any tool invocations made by the model
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// FinishReason indicates why generation stopped
	// (stop, length, tool_calls, content_filter)
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token consumption totals
	Usage TokenUsage `json:"usage"`

	// FallbackUsed marks a stale response served from the fallback cache
	FallbackUsed bool `json:"fallback_used,omitempty"`

	// Created is the Unix timestamp when the response completed
	Created int64 `json:"created"`
}

// UpstreamHealth tracks the request-level health of one upstream adapter.
// It complements the circuit breaker: the breaker decides admission, the
// health snapshot feeds readiness reporting.
type UpstreamHealth struct {
	// Healthy indicates whether the upstream is currently considered healthy
	Healthy bool

	// LastCheck is the timestamp of the last recorded outcome
	LastCheck time.Time

	// LastError is the most recent error encountered (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential request failures
	ConsecutiveFailures int

	// TotalRequests is the total number of requests sent to this upstream
	TotalRequests int64

	// FailedRequests is the total number of failed requests
	FailedRequests int64
}

// UpstreamConfig contains configuration for a single upstream adapter.
type UpstreamConfig struct {
	// Name is the upstream identifier used for routing (e.g. "anthropic")
	Name string

	// Type selects the adapter implementation (openai, anthropic, generic)
	Type string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication key
	APIKey string

	// Timeout is the hard per-call timeout applied to every upstream call
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// Error kind constants carried by error events.
const (
	ErrKindRateLimited      = "rate_limited"
	ErrKindCircuitOpen      = "circuit_open"
	ErrKindRetryExhausted   = "retry_exhausted"
	ErrKindUpstreamProtocol = "upstream_protocol"
	ErrKindCancelled        = "cancelled"
	ErrKindUpstream         = "upstream"
)
