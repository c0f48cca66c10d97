package breaker

import (
	"fmt"
	"time"
)

// State is the position of a breaker's state machine.
type State string

const (
	// StateClosed passes calls through and counts failures
	StateClosed State = "closed"

	// StateOpen rejects calls without invoking the upstream
	StateOpen State = "open"

	// StateHalfOpen admits a bounded number of probe calls
	StateHalfOpen State = "half-open"
)

// Config holds the tunables of one breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a closed breaker (default 5)
	FailureThreshold int

	// SuccessThreshold is the number of consecutive probe successes that
	// closes a half-open breaker (default 1)
	SuccessThreshold int

	// ResetTimeout is how long an open breaker rejects before admitting
	// probes (default 30s)
	ResetTimeout time.Duration

	// ProbeLimit is the maximum number of concurrent half-open probes
	// (default 1)
	ProbeLimit int
}

// withDefaults fills in the zero-valued tunables.
func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.ProbeLimit <= 0 {
		c.ProbeLimit = 1
	}
	return c
}

// StateChange describes one breaker transition, delivered to the registry's
// observer callback.
type StateChange struct {
	// Upstream is the breaker's upstream name
	Upstream string

	// From is the state before the transition
	From State

	// To is the state after the transition
	To State

	// At is when the transition happened
	At time.Time
}

// Snapshot is a point-in-time copy of one breaker's state, used by the
// readiness endpoint and by logs.
type Snapshot struct {
	Upstream             string
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int

	// OpenedAt is when the breaker last tripped (zero unless it has
	// ever opened)
	OpenedAt time.Time
}

// OpenError is returned by Guard when the breaker rejects a call without
// invoking the upstream: either the breaker is open and the reset timeout
// has not elapsed, or it is half-open and the probe slots are taken.
type OpenError struct {
	// Upstream is the breaker's upstream name
	Upstream string

	// State is the breaker state that rejected the call
	State State

	// RetryAfter is how long until the breaker will admit a probe
	// (zero when rejected by a half-open probe limit)
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("breaker for upstream %q is %s (retry after %s)",
			e.Upstream, e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("breaker for upstream %q is %s", e.Upstream, e.State)
}
