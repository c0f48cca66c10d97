package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// UpstreamError represents a general upstream error.
// It includes the upstream name, HTTP status code, and underlying error.
type UpstreamError struct {
	// Upstream is the name of the upstream that returned the error
	Upstream string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %q error (status %d): %s", e.Upstream, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %q error: %s", e.Upstream, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// AuthError represents an authentication failure.
// This occurs when the upstream rejects the API key (HTTP 401 or 403).
type AuthError struct {
	// Upstream is the name of the upstream that rejected authentication
	Upstream string

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream %q authentication failed: %s", e.Upstream, e.Message)
}

// RateLimitError represents an upstream rate limit rejection (HTTP 429).
// It includes the retry-after duration if the upstream provided one.
type RateLimitError struct {
	// Upstream is the name of the upstream that rate limited the request
	Upstream string

	// RetryAfter is the duration to wait before retrying (if provided)
	RetryAfter time.Duration

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream %q rate limit exceeded (retry after %s): %s",
			e.Upstream, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("upstream %q rate limit exceeded: %s", e.Upstream, e.Message)
}

// TimeoutError represents a hard per-call timeout.
// This occurs when a request exceeds the configured timeout duration.
type TimeoutError struct {
	// Upstream is the name of the upstream where the timeout occurred
	Upstream string

	// Timeout is the configured timeout duration
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %q request timeout after %s", e.Upstream, e.Timeout)
}

// ParseError represents a response parsing failure.
// This occurs when the upstream returns a malformed body or stream frame.
type ParseError struct {
	// Upstream is the name of the upstream that returned the malformed response
	Upstream string

	// RawResponse is the raw payload that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream %q response parse error: %v", e.Upstream, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ValidationError represents a request validation failure.
// This occurs when the canonical request has invalid fields before any
// upstream contact.
type ValidationError struct {
	// Field is the name of the invalid field
	Field string

	// Message describes what is invalid about the field
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// StreamError represents a transport failure after the stream was
// established.
type StreamError struct {
	// Upstream is the name of the upstream where the error occurred
	Upstream string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream %q stream error: %s: %v", e.Upstream, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream %q stream error: %s", e.Upstream, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ConfigError represents an upstream configuration error.
type ConfigError struct {
	// Upstream is the name of the upstream with invalid configuration
	Upstream string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("upstream %q configuration error for field %q: %s",
		e.Upstream, e.Field, e.Message)
}

// Retryable classifies an error as transient (worth retrying against the
// same upstream) or terminal. Classification is by error type and status
// code only, never by message matching.
//
// Retryable:
//   - timeouts (TimeoutError, net timeouts, context.DeadlineExceeded)
//   - connection failures and resets (net.OpError, ECONNRESET, EPIPE,
//     unexpected EOF mid-stream)
//   - upstream 429 (RateLimitError)
//   - upstream 5xx (UpstreamError with StatusCode >= 500)
//   - StreamError whose cause is itself retryable
//
// Not retryable:
//   - context.Canceled (the caller gave up)
//   - AuthError, ValidationError, ConfigError, ParseError
//   - upstream 4xx other than 429
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancellation is never retried.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return false
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		if upErr.StatusCode >= 500 {
			return true
		}
		if upErr.StatusCode >= 400 {
			return false
		}
		// No status: a transport-level failure wrapped by the adapter.
		return true
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		if streamErr.Cause != nil {
			return Retryable(streamErr.Cause)
		}
		return true
	}

	// Raw transport errors from net/http.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}
