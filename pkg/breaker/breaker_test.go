package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

// fakeClock drives a breaker's time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(config Config, onChange func(StateChange)) (*Breaker, *fakeClock) {
	b := New("test-upstream", config, onChange)
	clock := newFakeClock()
	b.now = clock.now
	return b, clock
}

func failingCall() error { return errUpstream }

func TestBreaker_TripsAfterFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 5, ResetTimeout: 30 * time.Second}, nil)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 5; i++ {
		err := b.Guard(ctx, func() error {
			calls++
			return errUpstream
		})
		if !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i+1, err)
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open after 5 failures, got %s", got)
	}

	// Sixth call fails fast without touching the upstream.
	err := b.Guard(ctx, func() error {
		calls++
		return nil
	})

	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %v", err)
	}
	if openErr.Upstream != "test-upstream" {
		t.Errorf("expected upstream name in error, got %q", openErr.Upstream)
	}
	if openErr.RetryAfter <= 0 || openErr.RetryAfter > 30*time.Second {
		t.Errorf("expected RetryAfter in (0, 30s], got %s", openErr.RetryAfter)
	}
	if calls != 5 {
		t.Errorf("expected exactly 5 upstream invocations, got %d", calls)
	}
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3}, nil)
	ctx := context.Background()

	b.Guard(ctx, failingCall)
	b.Guard(ctx, failingCall)
	b.Guard(ctx, func() error { return nil })
	b.Guard(ctx, failingCall)
	b.Guard(ctx, failingCall)

	if got := b.State(); got != StateClosed {
		t.Errorf("streak was broken, breaker should stay closed, got %s", got)
	}

	snap := b.Snapshot()
	if snap.ConsecutiveFailures != 2 {
		t.Errorf("expected failure streak 2, got %d", snap.ConsecutiveFailures)
	}
	if snap.ConsecutiveSuccesses != 0 {
		t.Errorf("counters must not both be nonzero, successes = %d", snap.ConsecutiveSuccesses)
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 2, ResetTimeout: 30 * time.Second}, nil)
	ctx := context.Background()

	b.Guard(ctx, failingCall)
	b.Guard(ctx, failingCall)
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open, got %s", got)
	}

	// Before the timeout the breaker still rejects.
	clock.advance(29 * time.Second)
	var openErr *OpenError
	if err := b.Guard(ctx, failingCall); !errors.As(err, &openErr) {
		t.Fatalf("expected fail-fast before reset timeout, got %v", err)
	}

	// After the timeout the next call runs as a probe.
	clock.advance(2 * time.Second)
	probed := false
	err := b.Guard(ctx, func() error {
		probed = true
		return nil
	})
	if err != nil {
		t.Fatalf("probe should run and succeed, got %v", err)
	}
	if !probed {
		t.Fatal("probe function was not invoked")
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("successful probe should close the breaker, got %s", got)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Second}, nil)
	ctx := context.Background()

	b.Guard(ctx, failingCall)
	clock.advance(2 * time.Second)

	if err := b.Guard(ctx, failingCall); !errors.Is(err, errUpstream) {
		t.Fatalf("probe should run, got %v", err)
	}
	if got := b.State(); got != StateOpen {
		t.Errorf("failed probe should reopen, got %s", got)
	}

	// The trip timestamp restarts: still rejecting before another full
	// reset timeout.
	clock.advance(500 * time.Millisecond)
	var openErr *OpenError
	if err := b.Guard(ctx, failingCall); !errors.As(err, &openErr) {
		t.Errorf("expected fail-fast after reopen, got %v", err)
	}
}

func TestBreaker_SuccessThresholdRequiresStreak(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		ResetTimeout:     time.Second,
	}, nil)
	ctx := context.Background()

	b.Guard(ctx, failingCall)
	clock.advance(2 * time.Second)

	b.Guard(ctx, func() error { return nil })
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("one probe success of two should stay half-open, got %s", got)
	}

	b.Guard(ctx, func() error { return nil })
	if got := b.State(); got != StateClosed {
		t.Errorf("second probe success should close, got %s", got)
	}
}

func TestBreaker_ConcurrentProbesFailFast(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Second}, nil)
	ctx := context.Background()

	b.Guard(ctx, failingCall)
	clock.advance(2 * time.Second)

	probeStarted := make(chan struct{})
	probeRelease := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		probeDone <- b.Guard(ctx, func() error {
			close(probeStarted)
			<-probeRelease
			return nil
		})
	}()

	<-probeStarted

	// The probe slot is taken; a second caller must not run.
	err := b.Guard(ctx, func() error {
		t.Error("excess caller must not invoke the upstream")
		return nil
	})
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError for excess probe, got %v", err)
	}
	if openErr.State != StateHalfOpen {
		t.Errorf("expected half-open rejection, got %s", openErr.State)
	}

	close(probeRelease)
	if err := <-probeDone; err != nil {
		t.Fatalf("probe should succeed, got %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", got)
	}
}

func TestBreaker_CancelledCallsAreNotRecorded(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		b.Guard(ctx, func() error { return context.Canceled })
	}

	if got := b.State(); got != StateClosed {
		t.Errorf("cancellations must not trip the breaker, got %s", got)
	}
	if snap := b.Snapshot(); snap.ConsecutiveFailures != 0 {
		t.Errorf("expected failure streak 0, got %d", snap.ConsecutiveFailures)
	}
}

func TestBreaker_StateChangeObserver(t *testing.T) {
	var mu sync.Mutex
	var changes []StateChange

	b, clock := newTestBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Second},
		func(c StateChange) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		})
	ctx := context.Background()

	b.Guard(ctx, failingCall) // closed -> open
	clock.advance(2 * time.Second)
	b.Guard(ctx, func() error { return nil }) // open -> half-open -> closed

	mu.Lock()
	defer mu.Unlock()

	want := []struct{ from, to State }{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %+v", len(want), len(changes), changes)
	}
	for i, w := range want {
		if changes[i].From != w.from || changes[i].To != w.to {
			t.Errorf("transition %d: expected %s->%s, got %s->%s",
				i, w.from, w.to, changes[i].From, changes[i].To)
		}
		if changes[i].Upstream != "test-upstream" {
			t.Errorf("transition %d: expected upstream name, got %q", i, changes[i].Upstream)
		}
		if changes[i].At.IsZero() {
			t.Errorf("transition %d: missing timestamp", i)
		}
	}
}

func TestRegistry_PerUpstreamIsolation(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 2}, nil)
	ctx := context.Background()

	r.Guard(ctx, "primary", failingCall)
	r.Guard(ctx, "primary", failingCall)

	var openErr *OpenError
	if err := r.Guard(ctx, "primary", failingCall); !errors.As(err, &openErr) {
		t.Fatalf("primary should be open, got %v", err)
	}

	called := false
	if err := r.Guard(ctx, "secondary", func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("secondary should be unaffected, got %v", err)
	}
	if !called {
		t.Error("secondary call should have run")
	}
}

func TestRegistry_Snapshots(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 2}, nil)
	ctx := context.Background()

	r.Guard(ctx, "a", failingCall)
	r.Guard(ctx, "b", func() error { return nil })

	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps["a"].ConsecutiveFailures != 1 {
		t.Errorf("expected a's failure streak 1, got %d", snaps["a"].ConsecutiveFailures)
	}
	if snaps["b"].State != StateClosed {
		t.Errorf("expected b closed, got %s", snaps["b"].State)
	}
}

func TestRegistry_UpdateConfigAppliesToExistingBreakers(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 10}, nil)
	ctx := context.Background()

	r.Guard(ctx, "a", failingCall)
	r.UpdateConfig(Config{FailureThreshold: 2})
	r.Guard(ctx, "a", failingCall)

	if got := r.Breaker("a").State(); got != StateOpen {
		t.Errorf("lowered threshold should trip on next failure, got %s", got)
	}
}

func TestRegistry_ObserverReceivesAllBreakers(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	r := NewRegistry(Config{FailureThreshold: 1}, func(c StateChange) {
		mu.Lock()
		seen[c.Upstream] = true
		mu.Unlock()
	})
	ctx := context.Background()

	r.Guard(ctx, "a", failingCall)
	r.Guard(ctx, "b", failingCall)

	mu.Lock()
	defer mu.Unlock()
	if !seen["a"] || !seen["b"] {
		t.Errorf("expected transitions from both upstreams, got %v", seen)
	}
}
