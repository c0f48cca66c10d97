package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"palisade-hq/bulwark/pkg/providers"
	"palisade-hq/bulwark/pkg/ratelimit"
	"palisade-hq/bulwark/pkg/retry"
	"palisade-hq/bulwark/pkg/telemetry/metrics"
)

// Orchestrator drives one chat request through the resilience pipeline:
//
//	admission -> dedup -> breaker-guarded dial (retried) -> streaming
//
// Admission rejection happens before any upstream contact and produces no
// events. Identical in-flight requests coalesce onto one upstream execution.
// Each dial attempt runs under the upstream's circuit breaker; an open
// breaker is non-retryable and stops the attempt loop immediately. Finished
// responses feed the fallback cache, which serves stale results when the
// attempt budget is exhausted.
//
// Re-dials and fallback replay surface on the stream as Status events ahead
// of any content, so subscribers can observe degradation as it happens.
//
// Exactly one terminal event (End or Error) closes every stream the
// orchestrator hands out.
type Orchestrator struct {
	registry *Registry
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator over a registry's pipeline.
func NewOrchestrator(registry *Registry) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		logger:   slog.Default().With("component", "proxy.orchestrator"),
	}
}

// Execute runs req through the pipeline and returns its event stream. The
// caller owns the stream and must close it; for non-streaming responses,
// aggregate it with providers.Collect.
//
// Rejections and failures before the first event are returned as errors
// (RateLimitedError, *breaker.OpenError, *retry.ExhaustedError, ...); once a
// stream is returned, failures arrive as its terminal Error event.
func (o *Orchestrator) Execute(ctx context.Context, req *providers.ChatRequest, caller Caller) (providers.EventStream, error) {
	decision := o.registry.limiter.Admit(admissionKeys(caller)...)
	if !decision.Allowed {
		o.logger.WarnContext(ctx, "request rejected by rate limiter",
			"dimension", string(decision.Dimension),
			"limit", decision.Limit,
			"retry_after", decision.RetryAfter,
		)
		o.registry.metrics.RecordRateLimitRejection(string(decision.Dimension))
		return nil, &RateLimitedError{Decision: decision}
	}

	fingerprint := req.Fingerprint()
	stream, joined, err := o.registry.dedup.Do(ctx, fingerprint, func(execCtx context.Context) (providers.EventStream, error) {
		return o.dial(execCtx, req, fingerprint)
	})
	if err != nil {
		return nil, err
	}

	if joined {
		o.logger.DebugContext(ctx, "coalesced onto in-flight request",
			"request_id", req.RequestID,
			"fingerprint", shortFingerprint(fingerprint),
		)
	}
	return stream, nil
}

// dial establishes the upstream stream under retry and breaker guard. It
// runs once per coalesced group, on the first caller's execution context.
func (o *Orchestrator) dial(ctx context.Context, req *providers.ChatRequest, fingerprint string) (providers.EventStream, error) {
	adapter, err := o.registry.adapters.Adapter(req.UpstreamID)
	if err != nil {
		return nil, &providers.ConfigError{
			Upstream: req.UpstreamID,
			Field:    "upstream_id",
			Message:  err.Error(),
		}
	}

	guardTimeout := o.registry.guardTimeout()
	// Counted by the retry executor's sequential attempt loop; every
	// invocation past the first is a re-dial.
	dials := 0
	send := func(attemptCtx context.Context) (providers.EventStream, error) {
		dials++
		callCtx := attemptCtx
		cancel := context.CancelFunc(func() {})
		if guardTimeout > 0 {
			// The guarded-call timeout bounds the whole exchange,
			// stream included. Cancel runs when the stream closes.
			callCtx, cancel = context.WithTimeout(attemptCtx, guardTimeout)
		}

		var stream providers.EventStream
		guardErr := o.registry.breakers.Guard(callCtx, req.UpstreamID, func() error {
			s, sendErr := adapter.Send(callCtx, req)
			if sendErr != nil {
				return sendErr
			}
			stream = s
			return nil
		})
		if guardErr != nil {
			cancel()
			return nil, guardErr
		}
		return &boundedStream{inner: stream, cancel: cancel}, nil
	}

	started := time.Now()
	stream, err := o.registry.retryExecutor().ExecuteStream(ctx, req, send)
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			o.registry.metrics.RecordRetriesExhausted(req.UpstreamID)
			o.registry.metrics.RecordCacheMiss()
		}
		o.registry.metrics.RecordRequest(req.UpstreamID, req.Model, "error", time.Since(started), metrics.TokenCounts{})
		o.logger.ErrorContext(ctx, "upstream dial failed",
			"upstream", req.UpstreamID,
			"request_id", req.RequestID,
			"error", err,
		)
		return nil, err
	}

	// Each re-dial surfaces as a Status event ahead of the upstream events,
	// so every subscriber sees what the request went through before its
	// first content arrives.
	if dials > 1 {
		lead := make([]*providers.ChatEvent, 0, dials-1)
		for i := 1; i < dials; i++ {
			lead = append(lead, &providers.ChatEvent{
				Type:  providers.EventStatus,
				State: providers.StateRetrying,
			})
		}
		stream = &statusStream{lead: lead, inner: stream}
	}

	return &recordedStream{
		inner:       stream,
		orch:        o,
		req:         req,
		fingerprint: fingerprint,
		started:     started,
	}, nil
}

// admissionKeys builds the rate-limit keys for a caller, in check order.
// Unset identity fields skip their dimension; the global dimension always
// applies.
func admissionKeys(caller Caller) []ratelimit.Key {
	keys := make([]ratelimit.Key, 0, 4)
	if caller.IP != "" {
		keys = append(keys, ratelimit.Key{Dimension: ratelimit.DimensionIP, Value: caller.IP})
	}
	if caller.User != "" {
		keys = append(keys, ratelimit.Key{Dimension: ratelimit.DimensionUser, Value: caller.User})
	}
	if caller.Endpoint != "" {
		keys = append(keys, ratelimit.Key{Dimension: ratelimit.DimensionEndpoint, Value: caller.Endpoint})
	}
	keys = append(keys, ratelimit.Key{Dimension: ratelimit.DimensionGlobal, Value: "global"})
	return keys
}

// boundedStream ties a stream's lifetime to its guarded-call context.
type boundedStream struct {
	inner  providers.EventStream
	cancel context.CancelFunc
}

func (s *boundedStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	return s.inner.Next(ctx)
}

func (s *boundedStream) Close() error {
	err := s.inner.Close()
	s.cancel()
	return err
}

// statusStream replays establishment-phase pipeline states as Status events
// before the upstream events.
type statusStream struct {
	lead  []*providers.ChatEvent
	inner providers.EventStream
}

func (s *statusStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	if len(s.lead) > 0 {
		ev := s.lead[0]
		s.lead = s.lead[1:]
		return ev, nil
	}
	return s.inner.Next(ctx)
}

func (s *statusStream) Close() error {
	return s.inner.Close()
}

// recordedStream observes one upstream execution as it streams: it
// aggregates the events so the finished result can feed the fallback cache,
// and records the request metric exactly once on the terminal outcome.
//
// It sits between the upstream stream and the dedup broadcast, so the
// aggregation happens once per execution regardless of subscriber count.
type recordedStream struct {
	inner       providers.EventStream
	orch        *Orchestrator
	req         *providers.ChatRequest
	fingerprint string
	started     time.Time

	content   strings.Builder
	toolCalls []providers.ToolCall
	settled   bool
}

func (s *recordedStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	ev, err := s.inner.Next(ctx)
	if err != nil {
		if err != io.EOF {
			s.settleError(err)
		}
		return nil, err
	}

	switch ev.Type {
	case providers.EventChunk:
		s.content.WriteString(ev.Text)
	case providers.EventToolCall:
		s.toolCalls = append(s.toolCalls, providers.ToolCall{
			Name: ev.ToolName,
			Args: ev.ToolArgs,
		})
	case providers.EventEnd:
		s.settleEnd(ev)
	case providers.EventError:
		s.settleError(&providers.UpstreamError{
			Upstream: s.req.UpstreamID,
			Message:  ev.Message,
		})
	}
	return ev, nil
}

func (s *recordedStream) Close() error {
	s.settleError(context.Canceled)
	return s.inner.Close()
}

// settleEnd records a completed execution and feeds the fallback cache.
func (s *recordedStream) settleEnd(ev *providers.ChatEvent) {
	if s.settled {
		return
	}
	s.settled = true

	result := &providers.ChatResult{
		ID:           s.req.RequestID,
		UpstreamID:   s.req.UpstreamID,
		Model:        s.req.Model,
		Content:      s.content.String(),
		ToolCalls:    s.toolCalls,
		FinishReason: ev.FinishReason,
		FallbackUsed: ev.FallbackUsed,
		Created:      time.Now().Unix(),
	}
	usage := metrics.TokenCounts{}
	if ev.Usage != nil {
		result.Usage = *ev.Usage
		usage.Prompt = ev.Usage.PromptTokens
		usage.Completion = ev.Usage.CompletionTokens
	}

	reg := s.orch.registry
	status := "success"
	if ev.FallbackUsed {
		status = "fallback"
		reg.metrics.RecordFallbackServed(s.req.UpstreamID)
		reg.metrics.RecordCacheHit()
	} else if reg.fallback != nil {
		reg.fallback.Save(s.fingerprint, result)
		reg.metrics.UpdateCacheSize(reg.fallback.Size())
	}

	reg.metrics.RecordRequest(s.req.UpstreamID, s.req.Model, status, time.Since(s.started), usage)
	s.orch.logger.Info("request completed",
		"request_id", s.req.RequestID,
		"upstream", s.req.UpstreamID,
		"model", s.req.Model,
		"status", status,
		"finish_reason", ev.FinishReason,
		"duration_ms", time.Since(s.started).Milliseconds(),
	)
}

// settleError records a failed or abandoned execution.
func (s *recordedStream) settleError(err error) {
	if s.settled {
		return
	}
	s.settled = true

	status := "error"
	if errors.Is(err, context.Canceled) {
		status = "cancelled"
	}

	s.orch.registry.metrics.RecordRequest(s.req.UpstreamID, s.req.Model, status, time.Since(s.started), metrics.TokenCounts{})
	s.orch.logger.Warn("request did not complete",
		"request_id", s.req.RequestID,
		"upstream", s.req.UpstreamID,
		"status", status,
		"error", err,
	)
}
