// Package anthropic implements the Anthropic upstream adapter.
//
// This package provides an implementation of the providers.Adapter interface
// for Anthropic's Messages API. It supports:
//
//   - Messages API (Claude models)
//   - Streaming responses (Server-Sent Events)
//   - Extended thinking (reasoning deltas)
//   - Tool calling
//   - Token usage tracking
//
// # Basic Usage
//
//	cfg := providers.UpstreamConfig{
//	    Name:    "anthropic",
//	    Type:    "anthropic",
//	    BaseURL: "https://api.anthropic.com",
//	    APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
//	}
//
//	adapter, err := anthropic.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close()
//
//	stream, err := adapter.Send(ctx, req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//
// # Event Mapping
//
// Anthropic SSE events map onto the canonical event union as follows:
//
//   - content_block_delta / text_delta -> Chunk
//   - content_block_delta / thinking_delta -> Reasoning
//   - content_block_start(tool_use) + input_json_delta -> ToolCall
//     (emitted once on content_block_stop, with accumulated arguments)
//   - message_delta -> End (carries usage and normalized stop reason)
//   - message_start, content_block_start(text), ping -> no event
//
// Non-streaming requests go through the plain Messages API and come back as
// a replayed stream: one Chunk with the full text, tool-call events, one End.
//
// # Request Transformation
//
// The adapter transforms the canonical ChatRequest to Anthropic's format:
//
//   - System messages are extracted and placed in the "system" field
//   - Messages must alternate between user and assistant (enforced by validation)
//   - MaxTokens is required (defaults to 4096 if not provided)
//
// # Anthropic-Specific Requirements
//
// Important differences from OpenAI-compatible upstreams:
//
//  1. MaxTokens is required (cannot be 0)
//  2. System messages must be extracted from the messages array
//  3. Messages must alternate between user and assistant
//  4. First message must be from user
//  5. Uses x-api-key header instead of Authorization: Bearer
//  6. Requires anthropic-version header
package anthropic
