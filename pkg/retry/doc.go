// Package retry implements bounded retry with exponential backoff, jitter,
// and degrade-to-cache fallback.
//
// # Overview
//
// The executor re-dials an upstream call while the error is classified as
// retryable and attempts remain. The delay before attempt n+1 is
//
//	min(BaseDelay * BackoffFactor^n, MaxDelay) + random(0, 10%)
//
// Classification goes through a typed-error predicate (by default
// providers.Retryable), never message matching. Backoff sleeps respect
// context cancellation; a cancelled caller stops retrying immediately.
//
// # Entry points
//
// Execute retries a call that produces an aggregated result. ExecuteStream
// retries stream establishment and the first event only: once a stream has
// delivered an event, it is never re-dialed mid-flight, because the caller
// may already have observed output.
//
// # Fallback
//
// When every attempt is exhausted and a fallback source is configured, the
// executor returns the matching non-expired cached result with
// FallbackUsed set, so callers can signal a degraded response. Without a
// fallback hit, the last error is wrapped in *ExhaustedError.
package retry
