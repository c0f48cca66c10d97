// Package ratelimit implements per-key sliding window admission control.
//
// # Overview
//
// The limiter tracks admission timestamps per key over a rolling time
// window. Old timestamps outside the window are pruned lazily on access.
// This provides accurate rate limiting without the "reset spike" problem of
// fixed windows: a key that used its whole budget in the last second of one
// minute cannot immediately use a full budget in the first second of the
// next.
//
// # Decisions, not errors
//
// Admission control never fails. Admit returns a Decision: either the
// request is allowed (and its timestamp recorded), or it is rejected with
// the limit, the remaining budget, and a RetryAfter hint derived from the
// oldest timestamp still inside the window:
//
//	retryAfter = window - (now - oldest)
//
// RetryAfter is always in (0, window] for a rejection.
//
// # Dimensions
//
// MultiLimiter checks several dimensions per request (client IP, user,
// endpoint, global) in caller order. The first exceeded dimension rejects
// and names itself in the Decision; nothing is recorded on rejection. Only
// when every dimension admits is a timestamp inserted into every
// dimension's window.
//
// # Burst control
//
// A Config may carry a secondary burst window: a shorter window with its own
// threshold. A request must pass both the sustained and the burst window.
// This lets a key average 100 requests/minute without allowing all 100 in
// the same second.
//
// # Thread Safety
//
// Limiter and MultiLimiter are safe for concurrent use.
package ratelimit
