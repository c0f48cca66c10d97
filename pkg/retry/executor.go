package retry

import (
	"context"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// FallbackSource looks up a cached result for a request fingerprint.
// Implemented by the fallback cache; nil disables degrade-to-cache.
type FallbackSource interface {
	Lookup(fingerprint string) (*providers.ChatResult, bool)
}

// Executor re-dials upstream calls under a Policy.
type Executor struct {
	policy   Policy
	fallback FallbackSource
	onRetry  func(Attempt)
}

// NewExecutor creates an executor. fallback and onRetry may be nil; onRetry
// is invoked once per failed attempt, before the backoff sleep.
func NewExecutor(policy Policy, fallback FallbackSource, onRetry func(Attempt)) *Executor {
	return &Executor{
		policy:   policy.withDefaults(),
		fallback: fallback,
		onRetry:  onRetry,
	}
}

// Policy returns the executor's effective policy, defaults applied.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute retries fn until it succeeds, fails non-retryably, or exhausts
// the attempt budget.
//
// On exhaustion, a matching non-expired fallback entry is returned with
// FallbackUsed set; otherwise the last error is wrapped in *ExhaustedError.
func (e *Executor) Execute(ctx context.Context, req *providers.ChatRequest, fn func(context.Context) (*providers.ChatResult, error)) (*providers.ChatResult, error) {
	var lastErr error

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !e.policy.Retryable(err) {
			return nil, err
		}
		if err := e.backoff(ctx, req, attempt, lastErr); err != nil {
			return nil, err
		}
	}

	return e.exhausted(req, lastErr)
}

// ExecuteStream retries stream establishment and the first event only.
//
// Each attempt dials send and pulls one event. A retryable failure before
// that first event closes the stream and re-dials; once an event has been
// delivered the stream is handed to the caller as-is and never retried
// mid-flight.
//
// On exhaustion with a fallback hit, the cached result is replayed as a
// stream opened by a Status event in the degraded state, so consumers learn
// they are on stale content before any of it arrives.
func (e *Executor) ExecuteStream(ctx context.Context, req *providers.ChatRequest, send func(context.Context) (providers.EventStream, error)) (providers.EventStream, error) {
	var lastErr error

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		stream, err := send(ctx)
		if err == nil {
			var first *providers.ChatEvent
			first, err = stream.Next(ctx)
			if err == nil {
				return &primedStream{first: first, inner: stream}, nil
			}
			stream.Close()
		}
		lastErr = err

		if !e.policy.Retryable(err) {
			return nil, err
		}
		if err := e.backoff(ctx, req, attempt, lastErr); err != nil {
			return nil, err
		}
	}

	result, err := e.exhausted(req, lastErr)
	if err != nil {
		return nil, err
	}
	return &degradedStream{inner: providers.NewResultStream(result)}, nil
}

// backoff reports the failed attempt and, when more attempts remain, sleeps
// its delay. The sleep honors ctx.
func (e *Executor) backoff(ctx context.Context, req *providers.ChatRequest, attempt int, cause error) error {
	last := attempt+1 >= e.policy.MaxAttempts

	var delay time.Duration
	if !last {
		delay = e.policy.delay(attempt)
	}

	if e.onRetry != nil {
		a := Attempt{Number: attempt + 1, Delay: delay, Err: cause}
		if req != nil {
			a.Upstream = req.UpstreamID
		}
		e.onRetry(a)
	}

	if last {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// exhausted resolves the end of the attempt budget: fallback hit or error.
func (e *Executor) exhausted(req *providers.ChatRequest, lastErr error) (*providers.ChatResult, error) {
	upstream := ""
	if req != nil {
		upstream = req.UpstreamID
	}

	if e.fallback != nil && req != nil {
		if cached, ok := e.fallback.Lookup(req.Fingerprint()); ok {
			degraded := *cached
			degraded.FallbackUsed = true
			return &degraded, nil
		}
	}

	return nil, &ExhaustedError{
		Upstream: upstream,
		Attempts: e.policy.MaxAttempts,
		Err:      lastErr,
	}
}

// primedStream replays the event pulled during establishment, then
// delegates to the live stream.
type primedStream struct {
	first *providers.ChatEvent
	inner providers.EventStream
}

func (s *primedStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	if s.first != nil {
		ev := s.first
		s.first = nil
		return ev, nil
	}
	return s.inner.Next(ctx)
}

func (s *primedStream) Close() error {
	return s.inner.Close()
}

// degradedStream opens a fallback replay with a Status event announcing the
// degraded state, then delegates to the cached-result stream.
type degradedStream struct {
	announced bool
	inner     providers.EventStream
}

func (s *degradedStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	if !s.announced {
		s.announced = true
		return &providers.ChatEvent{
			Type:  providers.EventStatus,
			State: providers.StateDegraded,
		}, nil
	}
	return s.inner.Next(ctx)
}

func (s *degradedStream) Close() error {
	return s.inner.Close()
}
