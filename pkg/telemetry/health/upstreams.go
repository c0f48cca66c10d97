package health

import (
	"context"
	"errors"
	"fmt"

	"palisade-hq/bulwark/pkg/breaker"
)

// UpstreamsCheck builds a readiness check over the circuit breaker registry.
// The proxy stays ready while at least one upstream is reachable; it reports
// unhealthy only when every tracked breaker is open.
func UpstreamsCheck(registry *breaker.Registry) CheckFunc {
	return func(ctx context.Context) error {
		snapshots := registry.Snapshots()
		if len(snapshots) == 0 {
			// No upstream dialed yet; nothing to report.
			return nil
		}

		open := 0
		for _, snapshot := range snapshots {
			if snapshot.State == breaker.StateOpen {
				open++
			}
		}
		if open == len(snapshots) {
			return fmt.Errorf("all %d upstream circuit breakers are open", open)
		}
		return nil
	}
}

// PingCheck builds a readiness check from a component's ping function, for
// components like the fallback store that expose a connectivity probe.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New("no ping function configured")
		}
		return ping(ctx)
	}
}
