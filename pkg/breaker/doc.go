// Package breaker implements per-upstream circuit breaking.
//
// # Overview
//
// Each upstream gets a three-state machine:
//
//   - Closed: normal operation, calls pass through
//   - Open: fail fast, calls rejected without touching the upstream
//   - HalfOpen: a bounded number of probe calls test recovery
//
// Transitions:
//
//   - Closed -> Open when consecutive failures reach FailureThreshold
//   - Open -> HalfOpen once ResetTimeout has elapsed since the trip
//   - HalfOpen -> Closed after SuccessThreshold consecutive probe successes
//   - HalfOpen -> Open on any probe failure
//
// # Usage
//
//	registry := breaker.NewRegistry(breaker.Config{
//	    FailureThreshold: 5,
//	    ResetTimeout:     30 * time.Second,
//	}, nil)
//
//	err := registry.Guard(ctx, "anthropic-primary", func() error {
//	    return callUpstream(ctx)
//	})
//
// A rejected call returns *OpenError without invoking the function. Guarded
// calls that end in context.Canceled are not recorded as either success or
// failure: the caller walked away, the upstream proved nothing.
//
// # Observability
//
// Every state transition is reported as a StateChange through the registry's
// observer callback, which the proxy wires to logging and metrics.
//
// # Thread Safety
//
// Breaker and Registry are safe for concurrent use.
package breaker
