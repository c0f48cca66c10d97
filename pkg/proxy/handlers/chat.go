package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/proxy"
	"palisade-hq/bulwark/pkg/proxy/middleware"
)

// ChatHandler serves POST /v1/chat. The request's stream flag selects the
// response shape: SSE events when true, one aggregated JSON result when
// false.
type ChatHandler struct {
	orchestrator *proxy.Orchestrator

	// requestTimeout bounds non-streaming requests. Streaming requests
	// are bounded by the upstream per-call timeout instead; a fixed
	// deadline would cut long generations mid-stream.
	requestTimeout time.Duration

	logger *slog.Logger
}

// NewChatHandler creates the chat endpoint handler.
func NewChatHandler(orchestrator *proxy.Orchestrator, requestTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		orchestrator:   orchestrator,
		requestTimeout: requestTimeout,
		logger:         slog.Default().With("component", "handlers.chat"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := proxy.ParseChatRequest(r)
	if err != nil {
		_ = proxy.WriteError(w, err)
		return
	}

	if req.RequestID == "" {
		req.RequestID = middleware.GetRequestID(r.Context())
	}

	ctx := r.Context()
	if !req.Stream && h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	stream, err := h.orchestrator.Execute(ctx, req, proxy.CallerFrom(r))
	if err != nil {
		_ = proxy.WriteError(w, err)
		return
	}

	if req.Stream {
		if err := proxy.WriteEventStream(ctx, w, stream); err != nil {
			h.logger.DebugContext(ctx, "stream delivery ended early",
				"request_id", req.RequestID,
				"error", err,
			)
		}
		return
	}

	result, err := providers.Collect(ctx, req.UpstreamID, stream)
	if err != nil {
		_ = proxy.WriteError(w, err)
		return
	}
	result.ID = req.RequestID
	result.Model = req.Model

	_ = proxy.WriteJSON(w, http.StatusOK, result)
}
