// Package dedup coalesces concurrent identical requests into one upstream
// execution.
//
// # Overview
//
// Requests are identified by their content fingerprint (the canonical
// request hash minus the request id). At any instant at most one execution
// per fingerprint is in flight: the first caller starts it, later callers
// join and receive the identical event sequence through a replay-buffer
// broadcast. A subscriber that joins mid-stream first catches up on every
// already-published event, in order, then follows live.
//
// # Lifecycle
//
// The shared execution runs under a context detached from any single
// caller: one subscriber cancelling must not kill the stream for the
// others. Leaving subscribers are counted down; the last leaver cancels
// the shared operation. On settlement (terminal event or error) the
// tracking entry is removed, so the next identical request starts fresh.
//
// A TTL safety valve force-removes a tracking entry that outlives the
// dedup window without cancelling the underlying operation, bounding how
// long new callers can pile onto one execution.
//
// # Usage
//
//	group := dedup.NewGroup(30*time.Second, nil)
//
//	stream, joined, err := group.Do(ctx, req.Fingerprint(),
//	    func(ctx context.Context) (providers.EventStream, error) {
//	        return adapter.Send(ctx, req)
//	    })
//
// # Thread Safety
//
// Group is safe for concurrent use. Each subscription is owned by a single
// caller.
package dedup
