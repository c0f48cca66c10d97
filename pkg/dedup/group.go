package dedup

import (
	"context"
	"io"
	"sync"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// Group tracks in-flight executions by fingerprint.
type Group struct {
	mu       sync.Mutex
	window   time.Duration
	inflight map[string]*entry
	onJoin   func(fingerprint string)
}

// entry is one fingerprint's in-flight execution.
type entry struct {
	bcast  *broadcast
	cancel context.CancelFunc
	subs   int

	// valve force-removes the tracking entry after the dedup window
	valve *time.Timer
}

// NewGroup creates a group. window bounds how long an entry stays joinable
// (zero disables the valve). onJoin, if non-nil, is invoked once per caller
// that joins an existing execution.
func NewGroup(window time.Duration, onJoin func(fingerprint string)) *Group {
	return &Group{
		window:   window,
		inflight: make(map[string]*entry),
		onJoin:   onJoin,
	}
}

// Do returns an event stream for the fingerprint, starting the shared
// execution if none is in flight. joined reports whether the caller
// attached to an existing execution.
//
// start runs under a context detached from ctx: a single subscriber's
// cancellation never kills the shared stream. The last leaving subscriber
// cancels it. The returned stream's Close leaves the subscription; it does
// not tear down the shared execution unless the caller was the last one.
func (g *Group) Do(ctx context.Context, fingerprint string, start func(context.Context) (providers.EventStream, error)) (providers.EventStream, bool, error) {
	g.mu.Lock()

	if e, ok := g.inflight[fingerprint]; ok {
		e.subs++
		g.mu.Unlock()
		if g.onJoin != nil {
			g.onJoin(fingerprint)
		}
		return g.subscribe(fingerprint, e), true, nil
	}

	// First caller: run the execution detached from this caller's ctx,
	// keeping its values (request ids, trace ids) for logging.
	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{
		bcast:  newBroadcast(),
		cancel: cancel,
		subs:   1,
	}
	if g.window > 0 {
		e.valve = time.AfterFunc(g.window, func() {
			g.remove(fingerprint, e)
		})
	}
	g.inflight[fingerprint] = e
	g.mu.Unlock()

	go g.run(execCtx, fingerprint, e, start)

	return g.subscribe(fingerprint, e), false, nil
}

// Inflight returns the number of tracked executions.
func (g *Group) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

// run pumps the upstream stream into the entry's broadcast, then settles
// the entry.
func (g *Group) run(ctx context.Context, fingerprint string, e *entry, start func(context.Context) (providers.EventStream, error)) {
	defer g.remove(fingerprint, e)

	stream, err := start(ctx)
	if err != nil {
		e.bcast.finish(err)
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			// io.EOF is the normal end of a finished stream.
			e.bcast.finish(err)
			return
		}
		e.bcast.publish(*ev)
	}
}

// subscribe attaches one reader to an entry's broadcast.
func (g *Group) subscribe(fingerprint string, e *entry) providers.EventStream {
	return &subscription{
		bcast: e.bcast,
		leave: func() { g.leave(fingerprint, e) },
	}
}

// leave counts one subscriber out; the last leaver cancels the shared
// execution.
func (g *Group) leave(fingerprint string, e *entry) {
	g.mu.Lock()
	e.subs--
	last := e.subs == 0
	g.mu.Unlock()

	if last {
		e.cancel()
		g.remove(fingerprint, e)
	}
}

// remove drops the tracking entry if it is still the current one for the
// fingerprint. Subscribers already attached keep reading the broadcast.
func (g *Group) remove(fingerprint string, e *entry) {
	g.mu.Lock()
	if cur, ok := g.inflight[fingerprint]; ok && cur == e {
		delete(g.inflight, fingerprint)
	}
	g.mu.Unlock()

	if e.valve != nil {
		e.valve.Stop()
	}
}

// subscription is one caller's view of a shared execution.
type subscription struct {
	bcast *broadcast
	pos   int

	mu     sync.Mutex
	closed bool
	leave  func()
}

// Next returns the next event of the shared sequence, replaying buffered
// events before following live ones.
func (s *subscription) Next(ctx context.Context) (*providers.ChatEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}
	pos := s.pos
	s.mu.Unlock()

	ev, err := s.bcast.next(ctx, pos)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pos++
	s.mu.Unlock()
	return ev, nil
}

// Close leaves the subscription. The shared execution is cancelled only if
// this was the last subscriber.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.leave()
	return nil
}
