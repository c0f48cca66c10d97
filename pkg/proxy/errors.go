package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"palisade-hq/bulwark/pkg/breaker"
	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/ratelimit"
	"palisade-hq/bulwark/pkg/retry"
)

// RateLimitedError is returned by the orchestrator when admission control
// rejects a request before any upstream contact.
type RateLimitedError struct {
	// Decision is the rejecting limiter decision
	Decision ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s dimension (retry after %s)",
		e.Decision.Dimension, e.Decision.RetryAfter.Round(time.Millisecond))
}

// RequestError represents a request parsing or validation error.
type RequestError struct {
	// Field names the offending request field ("body" for envelope errors)
	Field string

	// Message describes the problem
	Message string
}

func (e *RequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ErrorDetail is the wire shape of one proxy error.
type ErrorDetail struct {
	// Kind classifies the failure (rate_limited, circuit_open,
	// retry_exhausted, upstream_protocol, cancelled, upstream,
	// invalid_request, internal)
	Kind string `json:"kind"`

	// Message is the human-readable description
	Message string `json:"message"`

	// Field names the offending request field for invalid_request errors
	Field string `json:"field,omitempty"`
}

// ErrorReply pairs an error body with its HTTP status and Retry-After hint.
type ErrorReply struct {
	// Status is the HTTP status code to respond with
	Status int `json:"-"`

	// RetryAfter is the wait hint for 429/503 replies (zero when absent)
	RetryAfter time.Duration `json:"-"`

	// Error is the response body payload
	Error ErrorDetail `json:"error"`
}

// statusClientClosedRequest mirrors the nginx convention for requests the
// client abandoned before a response was written.
const statusClientClosedRequest = 499

// HandleError maps a pipeline error to its HTTP reply. Every error the
// orchestrator or the request parser can produce has a stable kind and
// status here; unknown errors map to a 500 with no internal detail leaked.
func HandleError(err error) *ErrorReply {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return &ErrorReply{
			Status: http.StatusBadRequest,
			Error: ErrorDetail{
				Kind:    "invalid_request",
				Message: reqErr.Message,
				Field:   reqErr.Field,
			},
		}
	}

	var valErr *providers.ValidationError
	if errors.As(err, &valErr) {
		return &ErrorReply{
			Status: http.StatusBadRequest,
			Error: ErrorDetail{
				Kind:    "invalid_request",
				Message: valErr.Message,
				Field:   valErr.Field,
			},
		}
	}

	var cfgErr *providers.ConfigError
	if errors.As(err, &cfgErr) {
		return &ErrorReply{
			Status: http.StatusBadRequest,
			Error: ErrorDetail{
				Kind:    "invalid_request",
				Message: cfgErr.Error(),
			},
		}
	}

	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return &ErrorReply{
			Status:     http.StatusTooManyRequests,
			RetryAfter: limited.Decision.RetryAfter,
			Error: ErrorDetail{
				Kind:    providers.ErrKindRateLimited,
				Message: limited.Error(),
			},
		}
	}

	var open *breaker.OpenError
	if errors.As(err, &open) {
		return &ErrorReply{
			Status:     http.StatusServiceUnavailable,
			RetryAfter: open.RetryAfter,
			Error: ErrorDetail{
				Kind:    providers.ErrKindCircuitOpen,
				Message: open.Error(),
			},
		}
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return &ErrorReply{
			Status: http.StatusBadGateway,
			Error: ErrorDetail{
				Kind:    providers.ErrKindRetryExhausted,
				Message: exhausted.Error(),
			},
		}
	}

	var timeoutErr *providers.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &ErrorReply{
			Status: http.StatusGatewayTimeout,
			Error: ErrorDetail{
				Kind:    providers.ErrKindUpstream,
				Message: timeoutErr.Error(),
			},
		}
	}

	var parseErr *providers.ParseError
	if errors.As(err, &parseErr) {
		return &ErrorReply{
			Status: http.StatusBadGateway,
			Error: ErrorDetail{
				Kind:    providers.ErrKindUpstreamProtocol,
				Message: "upstream returned an unparseable response",
			},
		}
	}

	var rateErr *providers.RateLimitError
	if errors.As(err, &rateErr) {
		return &ErrorReply{
			Status:     http.StatusTooManyRequests,
			RetryAfter: rateErr.RetryAfter,
			Error: ErrorDetail{
				Kind:    providers.ErrKindRateLimited,
				Message: fmt.Sprintf("upstream %q rejected the request with a rate limit", rateErr.Upstream),
			},
		}
	}

	var authErr *providers.AuthError
	if errors.As(err, &authErr) {
		// Upstream rejected our credentials. That is a proxy
		// misconfiguration, not a caller authentication failure.
		return &ErrorReply{
			Status: http.StatusBadGateway,
			Error: ErrorDetail{
				Kind:    providers.ErrKindUpstream,
				Message: fmt.Sprintf("upstream %q rejected the proxy's credentials", authErr.Upstream),
			},
		}
	}

	var upErr *providers.UpstreamError
	if errors.As(err, &upErr) {
		return &ErrorReply{
			Status: http.StatusBadGateway,
			Error: ErrorDetail{
				Kind:    providers.ErrKindUpstream,
				Message: upErr.Error(),
			},
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorReply{
			Status: http.StatusGatewayTimeout,
			Error: ErrorDetail{
				Kind:    providers.ErrKindCancelled,
				Message: "request deadline exceeded",
			},
		}
	case errors.Is(err, context.Canceled):
		return &ErrorReply{
			Status: statusClientClosedRequest,
			Error: ErrorDetail{
				Kind:    providers.ErrKindCancelled,
				Message: "request cancelled",
			},
		}
	}

	return &ErrorReply{
		Status: http.StatusInternalServerError,
		Error: ErrorDetail{
			Kind:    "internal",
			Message: "an internal error occurred",
		},
	}
}

// ErrorEvent converts a pipeline error into the terminal error event for a
// stream that is already being delivered over SSE. The HTTP status is gone
// at that point; the event kind is the client's only signal.
func ErrorEvent(err error) *providers.ChatEvent {
	reply := HandleError(err)
	return &providers.ChatEvent{
		Type:    providers.EventError,
		ErrKind: reply.Error.Kind,
		Message: reply.Error.Message,
	}
}
