package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"palisade-hq/bulwark/pkg/providers"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// UserIDHeader is the HTTP header for user identification.
	UserIDHeader = "X-User-ID"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// Caller identifies where a request came from, for admission control.
// Empty fields skip their rate-limit dimension.
type Caller struct {
	// IP is the client address without port
	IP string

	// User is the caller identity from the X-User-ID header
	User string

	// Endpoint is the request route (e.g. "/v1/chat")
	Endpoint string
}

// ParseChatRequest parses an HTTP request body into the canonical chat
// request. The body is capped at MaxRequestBodySize; larger bodies and
// malformed JSON are rejected before any resilience machinery runs.
//
// Example usage:
//
//	req, err := proxy.ParseChatRequest(r)
//	if err != nil {
//	    proxy.WriteError(w, err)
//	    return
//	}
func ParseChatRequest(r *http.Request) (*providers.ChatRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, &RequestError{
			Field:   "body",
			Message: fmt.Sprintf("failed to read request body: %v", err),
		}
	}
	if len(body) > MaxRequestBodySize {
		return nil, &RequestError{
			Field:   "body",
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
		}
	}

	var req providers.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Field:   "body",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}
	}

	if req.UpstreamID == "" {
		return nil, &RequestError{
			Field:   "upstream_id",
			Message: "upstream_id is required",
		}
	}
	if err := providers.ValidateRequest(&req); err != nil {
		var valErr *providers.ValidationError
		if errors.As(err, &valErr) {
			return nil, &RequestError{Field: valErr.Field, Message: valErr.Message}
		}
		return nil, err
	}

	return &req, nil
}

// CallerFrom extracts the admission identity of a request.
func CallerFrom(r *http.Request) Caller {
	return Caller{
		IP:       ClientIP(r),
		User:     r.Header.Get(UserIDHeader),
		Endpoint: r.URL.Path,
	}
}

// ClientIP resolves the client address. The first entry of X-Forwarded-For
// wins when present; otherwise the connection's remote address is used.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ExtractRequestID extracts the request ID from the X-Request-ID header.
// If the header is not present, it returns an empty string and the
// middleware-generated ID is used instead.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}
