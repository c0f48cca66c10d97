package ratelimit

import "time"

// slidingWindow tracks admission timestamps for one key over a rolling
// window. Timestamps are kept in insertion order (oldest first) and pruned
// lazily to [now-window, now] on every access.
//
// Not safe for concurrent use; the owning limiter serializes access.
type slidingWindow struct {
	stamps []time.Time
}

// prune drops timestamps older than now-window.
func (w *slidingWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)

	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// check reports whether one more admission fits under limit, and on
// rejection how long until the oldest in-window timestamp expires.
// A zero limit means unlimited.
func (w *slidingWindow) check(now time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}

	w.prune(now, window)

	if len(w.stamps) < limit {
		return true, 0
	}

	// The oldest timestamp leaves the window after
	// window - (now - oldest); clamp into (0, window].
	retryAfter := window - now.Sub(w.stamps[0])
	if retryAfter <= 0 {
		retryAfter = time.Nanosecond
	}
	if retryAfter > window {
		retryAfter = window
	}
	return false, retryAfter
}

// record inserts an admission timestamp.
func (w *slidingWindow) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

// remaining returns the budget left under limit after pruning.
func (w *slidingWindow) remaining(now time.Time, limit int, window time.Duration) int {
	if limit <= 0 {
		return -1
	}
	w.prune(now, window)
	rem := limit - len(w.stamps)
	if rem < 0 {
		rem = 0
	}
	return rem
}
