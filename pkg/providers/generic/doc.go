// Package generic implements the adapter for non-streaming
// OpenAI-compatible upstreams.
//
// This package provides an implementation of the providers.Adapter interface
// for any upstream that speaks the OpenAI request/response format but where
// SSE streaming is unavailable or unwanted. It supports:
//
//   - Local LLM servers (Ollama, LM Studio, vLLM, FastChat)
//   - Custom OpenAI-compatible endpoints
//   - Self-hosted LLM APIs
//
// # Streaming Behavior
//
// The generic adapter always performs a blocking JSON exchange. The single
// response is replayed as a canonical event stream: exactly one Chunk
// carrying the full text (plus any tool-call events), then one End carrying
// usage totals. A caller that requested streaming still receives a
// well-formed stream; it just arrives in one burst.
//
// # Configuration
//
//   - BaseURL is required (there is no sensible default for local servers)
//   - APIKey is optional; a placeholder is used when absent
//
// # Supported Platforms
//
// Any OpenAI-compatible API, including:
//
//   - Ollama (http://localhost:11434/v1)
//   - LM Studio (http://localhost:1234/v1)
//   - vLLM (http://localhost:8000/v1)
//   - Text Generation Inference (http://localhost:8080/v1)
//   - LocalAI (http://localhost:8080/v1)
package generic
