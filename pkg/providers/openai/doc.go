// Package openai implements the OpenAI upstream adapter.
//
// This package provides an implementation of the providers.Adapter interface
// for OpenAI's Chat Completions API. It also works against any
// OpenAI-compatible upstream (Azure OpenAI, local inference servers) by
// pointing BaseURL elsewhere. It supports:
//
//   - Chat completions
//   - Streaming responses (data-only Server-Sent Events with [DONE])
//   - Function/tool calling
//   - Token usage tracking (stream_options.include_usage)
//
// # Basic Usage
//
//	cfg := providers.UpstreamConfig{
//	    Name:    "openai",
//	    Type:    "openai",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	}
//
//	adapter, err := openai.New(cfg)
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
// Stream chunks map onto the canonical event union as follows:
//
//   - delta.content -> Chunk
//   - delta.tool_calls -> ToolCall (arguments accumulate across chunks and
//     are emitted once, on the finish chunk, in tool index order)
//   - finish chunk (finish_reason set) -> End, carrying normalized finish
//     reason and usage when the upstream includes it
//   - "data: [DONE]" -> end of stream; an End is synthesized if the upstream
//     never sent a finish chunk
//
// Non-streaming requests go through the plain completions call and come back
// as a replayed stream: one Chunk with the full text, tool-call events, one
// End.
package openai
