package retry

import (
	"fmt"
	"math/rand"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// Policy holds the retry tunables.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first
	// (default 3)
	MaxAttempts int

	// BaseDelay is the backoff before the first retry (default 1s)
	BaseDelay time.Duration

	// BackoffFactor multiplies the delay per retry (default 2)
	BackoffFactor float64

	// MaxDelay caps the backoff before jitter (default 30s)
	MaxDelay time.Duration

	// Retryable classifies errors; nil means providers.Retryable
	Retryable func(error) bool
}

// withDefaults fills in the zero-valued tunables.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Retryable == nil {
		p.Retryable = providers.Retryable
	}
	return p
}

// delay computes the backoff after the given zero-based failed attempt,
// including jitter.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffFactor
		if d >= float64(p.MaxDelay) {
			break
		}
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	jitter := rand.Float64() * d * 0.1
	return time.Duration(d + jitter)
}

// Attempt describes one failed try, delivered to the executor's observer
// before the backoff sleep.
type Attempt struct {
	// Upstream is the target upstream name
	Upstream string

	// Number is the 1-based attempt that failed
	Number int

	// Delay is the backoff before the next attempt (zero when no attempt
	// follows)
	Delay time.Duration

	// Err is the failure
	Err error
}

// ExhaustedError is returned when every attempt failed and no fallback
// entry was available.
type ExhaustedError struct {
	// Upstream is the target upstream name
	Upstream string

	// Attempts is how many tries were made
	Attempts int

	// Err is the last attempt's failure
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("upstream %q failed after %d attempts: %v",
		e.Upstream, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
