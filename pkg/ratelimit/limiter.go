package ratelimit

import (
	"sync"
	"time"
)

// entry holds the windows of one key: the sustained window and, when burst
// control is configured, the short burst window.
type entry struct {
	sustained slidingWindow
	burst     slidingWindow
}

// Limiter is a per-key sliding window admission controller.
//
// Keys are created lazily on first sight and swept opportunistically once
// their windows drain, so the memory footprint follows the active key set
// rather than the historical one.
type Limiter struct {
	mu     sync.Mutex
	config Config
	keys   map[string]*entry

	// admissions since the last idle-key sweep
	sinceSweep int
}

// sweepInterval is the number of admission checks between idle-key sweeps.
const sweepInterval = 1024

// NewLimiter creates a new limiter with the given configuration.
//
// Example:
//
//	limiter := ratelimit.NewLimiter(ratelimit.Config{
//	    Limit:  100,
//	    Window: time.Minute,
//	})
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		config: config,
		keys:   make(map[string]*entry),
	}
}

// Admit checks and, if allowed, records one admission for key.
// It never returns an error; rejection is a Decision.
func (l *Limiter) Admit(key string) Decision {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.checkLocked(key, now)
	if d.Allowed {
		l.recordLocked(key, now)
	}
	l.maybeSweepLocked(now)
	return d
}

// Remaining returns the sustained budget left for key.
func (l *Limiter) Remaining(key string) int {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.keys[key]
	if !ok {
		if l.config.Limit <= 0 {
			return -1
		}
		return l.config.Limit
	}
	return e.sustained.remaining(now, l.config.Limit, l.config.Window)
}

// UpdateConfig swaps the limiter's tunables. Existing windows keep their
// timestamps; the new limits apply from the next check.
func (l *Limiter) UpdateConfig(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = config
}

// checkLocked evaluates both windows without recording.
func (l *Limiter) checkLocked(key string, now time.Time) Decision {
	cfg := l.config
	e := l.keys[key]
	if e == nil {
		// Fresh key: admitted unless the limit is zero-width.
		e = &entry{}
		l.keys[key] = e
	}

	if ok, retryAfter := e.sustained.check(now, cfg.Limit, cfg.Window); !ok {
		return Decision{
			Allowed:    false,
			Limit:      cfg.Limit,
			Remaining:  0,
			RetryAfter: retryAfter,
		}
	}

	if cfg.BurstLimit > 0 {
		if ok, retryAfter := e.burst.check(now, cfg.BurstLimit, cfg.BurstWindow); !ok {
			return Decision{
				Allowed:    false,
				Limit:      cfg.BurstLimit,
				Remaining:  0,
				RetryAfter: retryAfter,
			}
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     cfg.Limit,
		Remaining: e.sustained.remaining(now, cfg.Limit, cfg.Window) - 1,
	}
}

// recordLocked inserts the admission timestamp into both windows.
func (l *Limiter) recordLocked(key string, now time.Time) {
	e := l.keys[key]
	if e == nil {
		e = &entry{}
		l.keys[key] = e
	}
	e.sustained.record(now)
	if l.config.BurstLimit > 0 {
		e.burst.record(now)
	}
}

// maybeSweepLocked drops keys whose windows have fully drained. Runs every
// sweepInterval admission checks to keep Admit O(1) amortized.
func (l *Limiter) maybeSweepLocked(now time.Time) {
	l.sinceSweep++
	if l.sinceSweep < sweepInterval {
		return
	}
	l.sinceSweep = 0

	for key, e := range l.keys {
		e.sustained.prune(now, l.config.Window)
		e.burst.prune(now, l.config.BurstWindow)
		if len(e.sustained.stamps) == 0 && len(e.burst.stamps) == 0 {
			delete(l.keys, key)
		}
	}
}

// MultiLimiter checks several dimensions per request, each with its own
// limiter and key space.
//
// Dimensions are checked in the caller's key order; the first exceeded
// dimension rejects and names itself in the Decision. Nothing is recorded
// on rejection. Only when every dimension admits is the timestamp inserted
// into every dimension's window, so a rejected request never consumes
// budget anywhere.
type MultiLimiter struct {
	mu       sync.Mutex
	config   MultiConfig
	limiters map[Dimension]*Limiter
}

// NewMultiLimiter creates a multi-dimension limiter from a default config
// and optional per-dimension overrides.
func NewMultiLimiter(config MultiConfig) *MultiLimiter {
	return &MultiLimiter{
		config:   config,
		limiters: make(map[Dimension]*Limiter),
	}
}

// Admit checks every key's dimension in order and records the admission
// into all of them if every check passes.
func (m *MultiLimiter) Admit(keys ...Key) Decision {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Phase 1: check all dimensions, reject on the first exceeded one.
	for _, key := range keys {
		lim := m.limiterLocked(key.Dimension)
		lim.mu.Lock()
		d := lim.checkLocked(key.Value, now)
		lim.mu.Unlock()
		if !d.Allowed {
			d.Dimension = key.Dimension
			return d
		}
	}

	// Phase 2: record into every dimension.
	var admitted Decision
	for i, key := range keys {
		lim := m.limiterLocked(key.Dimension)
		lim.mu.Lock()
		if i == 0 {
			admitted = lim.checkLocked(key.Value, now)
		}
		lim.recordLocked(key.Value, now)
		lim.maybeSweepLocked(now)
		lim.mu.Unlock()
	}
	admitted.Allowed = true
	return admitted
}

// UpdateConfig swaps the tunables of all dimensions. Existing windows keep
// their timestamps.
func (m *MultiLimiter) UpdateConfig(config MultiConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = config
	for dim, lim := range m.limiters {
		lim.UpdateConfig(config.configFor(dim))
	}
}

// limiterLocked returns (creating lazily) the limiter of one dimension.
func (m *MultiLimiter) limiterLocked(dim Dimension) *Limiter {
	lim, ok := m.limiters[dim]
	if !ok {
		lim = NewLimiter(m.config.configFor(dim))
		m.limiters[dim] = lim
	}
	return lim
}
