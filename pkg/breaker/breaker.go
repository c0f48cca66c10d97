package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Breaker is the state machine of one upstream.
//
// Exactly one of the two counters is ever nonzero: a success zeroes the
// failure streak and vice versa.
type Breaker struct {
	mu       sync.Mutex
	upstream string
	config   Config

	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time

	// probes is the number of half-open calls currently in flight
	probes int

	onChange func(StateChange)

	// now is replaceable in tests
	now func() time.Time
}

// New creates a closed breaker for one upstream. onChange, if non-nil, is
// invoked once per state transition, outside the breaker's lock.
func New(upstream string, config Config, onChange func(StateChange)) *Breaker {
	return &Breaker{
		upstream: upstream,
		config:   config.withDefaults(),
		state:    StateClosed,
		onChange: onChange,
		now:      time.Now,
	}
}

// Guard runs fn under the breaker.
//
// In Open before the reset timeout, Guard returns *OpenError without calling
// fn. In HalfOpen it admits at most ProbeLimit concurrent probes; excess
// callers get *OpenError. Otherwise fn runs and its outcome is recorded,
// except when the outcome is context.Canceled, which proves nothing about
// the upstream and leaves the counters untouched.
func (b *Breaker) Guard(ctx context.Context, fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := fn()
	b.release(err)
	return err
}

// State returns the breaker's current state, applying the Open -> HalfOpen
// timeout transition if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	change := b.maybeHalfOpenLocked(b.now())
	state := b.state
	b.mu.Unlock()

	b.emit(change)
	return state
}

// Snapshot returns a copy of the breaker's counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Upstream:             b.upstream,
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		OpenedAt:             b.openedAt,
	}
}

// UpdateConfig swaps the breaker's tunables. The current state and counters
// are kept; the new thresholds apply from the next recorded outcome.
func (b *Breaker) UpdateConfig(config Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = config.withDefaults()
}

// acquire decides whether the call may proceed, claiming a probe slot when
// half-open.
func (b *Breaker) acquire() error {
	now := b.now()

	b.mu.Lock()
	change := b.maybeHalfOpenLocked(now)

	switch b.state {
	case StateOpen:
		retryAfter := b.config.ResetTimeout - now.Sub(b.openedAt)
		err := &OpenError{Upstream: b.upstream, State: StateOpen, RetryAfter: retryAfter}
		b.mu.Unlock()
		b.emit(change)
		return err

	case StateHalfOpen:
		if b.probes >= b.config.ProbeLimit {
			err := &OpenError{Upstream: b.upstream, State: StateHalfOpen}
			b.mu.Unlock()
			b.emit(change)
			return err
		}
		b.probes++
	}

	b.mu.Unlock()
	b.emit(change)
	return nil
}

// release records the call's outcome and applies transitions.
func (b *Breaker) release(err error) {
	now := b.now()

	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.probes--
	}

	// A cancelled caller says nothing about upstream health.
	if errors.Is(err, context.Canceled) {
		b.mu.Unlock()
		return
	}

	var change StateChange
	if err == nil {
		b.consecutiveFailures = 0
		b.consecutiveSuccesses++
		if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
			change = b.transitionLocked(StateClosed, now)
		}
	} else {
		b.consecutiveSuccesses = 0
		b.consecutiveFailures++
		switch b.state {
		case StateHalfOpen:
			// Any probe failure reopens immediately.
			change = b.transitionLocked(StateOpen, now)
		case StateClosed:
			if b.consecutiveFailures >= b.config.FailureThreshold {
				change = b.transitionLocked(StateOpen, now)
			}
		}
	}
	b.mu.Unlock()

	b.emit(change)
}

// maybeHalfOpenLocked applies the Open -> HalfOpen transition once the reset
// timeout has elapsed. Returns the change to emit (zero if none).
func (b *Breaker) maybeHalfOpenLocked(now time.Time) StateChange {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.config.ResetTimeout {
		return b.transitionLocked(StateHalfOpen, now)
	}
	return StateChange{}
}

// transitionLocked moves the machine to next, resetting the counters.
func (b *Breaker) transitionLocked(next State, now time.Time) StateChange {
	change := StateChange{
		Upstream: b.upstream,
		From:     b.state,
		To:       next,
		At:       now,
	}
	b.state = next
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	if next == StateOpen {
		b.openedAt = now
	}
	return change
}

// emit delivers a transition to the observer, outside the lock.
func (b *Breaker) emit(change StateChange) {
	if change.To == "" || b.onChange == nil {
		return
	}
	b.onChange(change)
}
