package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteError maps err through HandleError and writes the reply. A positive
// RetryAfter is surfaced in the Retry-After header, rounded up to whole
// seconds.
func WriteError(w http.ResponseWriter, err error) error {
	reply := HandleError(err)
	if reply.RetryAfter > 0 {
		seconds := int64((reply.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}
	return WriteJSON(w, reply.Status, reply)
}

// SetSSEHeaders sets the response headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEEvent writes a single chat event in SSE format:
//
//	data: {"type":"chunk","text":"..."}
//
// followed by a blank line, and flushes so the client sees it immediately.
func WriteSSEEvent(w http.ResponseWriter, event *providers.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// WriteSSEDone writes the final "[DONE]" marker closing an SSE stream.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// WriteEventStream delivers a whole event stream over SSE and closes it.
// The stream's terminal event is followed by the [DONE] marker. A stream
// failure after headers are sent is delivered as a terminal error event;
// the HTTP status can no longer change at that point.
func WriteEventStream(ctx context.Context, w http.ResponseWriter, stream providers.EventStream) error {
	defer stream.Close()

	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	for {
		event, err := stream.Next(ctx)
		if err == io.EOF {
			return WriteSSEDone(w)
		}
		if err != nil {
			if writeErr := WriteSSEEvent(w, ErrorEvent(err)); writeErr != nil {
				return writeErr
			}
			return WriteSSEDone(w)
		}

		if err := WriteSSEEvent(w, event); err != nil {
			// The client is gone; draining the rest serves nobody.
			return err
		}
	}
}
