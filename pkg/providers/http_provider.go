package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HTTPUpstream is the base implementation for HTTP-based adapters.
// It provides connection pooling, hard per-call timeouts, typed error
// mapping, and request-level health tracking.
//
// Concrete adapters (openai, anthropic, generic) embed this struct and
// implement the Adapter interface on top of it.
//
// DoRequest is deliberately single-shot: retry policy belongs to the retry
// executor above the adapter layer, never inside it.
type HTTPUpstream struct {
	// config contains the upstream configuration
	config UpstreamConfig

	// client is the HTTP client with connection pooling
	client *http.Client

	// health tracks the upstream's health status
	health UpstreamHealth

	// healthMu protects concurrent access to health status
	healthMu sync.RWMutex
}

// NewHTTPUpstream creates a new base HTTP upstream with connection pooling.
func NewHTTPUpstream(config UpstreamConfig) *HTTPUpstream {
	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	// The client timeout is NOT set: it would cut off long-lived SSE
	// streams. The hard per-call timeout is applied per request via
	// context deadline in DoRequest.
	client := &http.Client{
		Transport: transport,
	}

	return &HTTPUpstream{
		config: config,
		client: client,
		health: UpstreamHealth{
			Healthy:   true, // start optimistic
			LastCheck: time.Now(),
		},
	}
}

// Name returns the upstream's configured name.
func (u *HTTPUpstream) Name() string {
	return u.config.Name
}

// Type returns the upstream's adapter type.
func (u *HTTPUpstream) Type() string {
	return u.config.Type
}

// Config returns the upstream's configuration.
func (u *HTTPUpstream) Config() UpstreamConfig {
	return u.config
}

// Health returns the upstream's health snapshot.
func (u *HTTPUpstream) Health() UpstreamHealth {
	u.healthMu.RLock()
	defer u.healthMu.RUnlock()
	return u.health
}

// RecordOutcome records the outcome of one upstream exchange. Three
// consecutive failures mark the upstream unhealthy for readiness reporting;
// admission decisions stay with the circuit breaker.
func (u *HTTPUpstream) RecordOutcome(err error) {
	u.healthMu.Lock()
	defer u.healthMu.Unlock()

	u.health.LastCheck = time.Now()
	u.health.TotalRequests++

	if err == nil {
		u.health.Healthy = true
		u.health.ConsecutiveFailures = 0
		u.health.LastError = nil
		return
	}

	u.health.FailedRequests++
	u.health.ConsecutiveFailures++
	u.health.LastError = err

	if u.health.ConsecutiveFailures >= 3 && u.health.Healthy {
		u.health.Healthy = false
		slog.Warn("upstream marked unhealthy",
			"upstream", u.config.Name,
			"consecutive_failures", u.health.ConsecutiveFailures,
			"error", err,
		)
	}
}

// DoRequest performs a single HTTP exchange under the hard per-call timeout
// and maps non-2xx statuses to typed errors. It never retries; the returned
// error is classified by Retryable for the executor above.
//
// On success the caller owns resp.Body. The returned cancel func must be
// called when the body is fully consumed or abandoned; for streaming
// responses it is the stream's Close hook.
func (u *HTTPUpstream) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, context.CancelFunc, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if u.config.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, u.config.Timeout)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, method, url, bodyReader)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("sending request to upstream",
		"upstream", u.config.Name,
		"method", method,
		"url", url,
	)

	resp, err := u.client.Do(req)
	if err != nil {
		cancel()
		u.RecordOutcome(err)

		// Distinguish the hard timeout from caller cancellation.
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, nil, &TimeoutError{
				Upstream: u.config.Name,
				Timeout:  u.config.Timeout,
			}
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &UpstreamError{
			Upstream: u.config.Name,
			Message:  "request failed",
			Cause:    err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		u.RecordOutcome(nil)
		return resp, cancel, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	cancel()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		authErr := &AuthError{
			Upstream: u.config.Name,
			Message:  string(errorBody),
		}
		u.RecordOutcome(authErr)
		return nil, nil, authErr

	case http.StatusTooManyRequests:
		rateErr := &RateLimitError{
			Upstream:   u.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    string(errorBody),
		}
		u.RecordOutcome(rateErr)
		return nil, nil, rateErr

	default:
		upErr := &UpstreamError{
			Upstream:   u.config.Name,
			StatusCode: resp.StatusCode,
			Message:    string(errorBody),
		}
		u.RecordOutcome(upErr)
		return nil, nil, upErr
	}
}

// DoJSONRequest performs a single JSON exchange and decodes the response.
func (u *HTTPUpstream) DoJSONRequest(ctx context.Context, method, url string, reqBody interface{}, respBody interface{}, headers map[string]string) error {
	var bodyBytes []byte
	var err error
	if reqBody != nil {
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, cancel, err := u.DoRequest(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{
			Upstream: u.config.Name,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ParseError{
				Upstream:    u.config.Name,
				RawResponse: string(responseBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}

	return nil
}

// Close releases idle connections. After Close the upstream must not be used.
func (u *HTTPUpstream) Close() error {
	u.client.CloseIdleConnections()
	slog.Debug("upstream closed", "upstream", u.config.Name)
	return nil
}

// ValidateRequest checks the canonical request before any upstream contact.
func ValidateRequest(req *ChatRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "request is nil"}
	}
	if req.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", msg.Role),
			}
		}
	}
	return nil
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
