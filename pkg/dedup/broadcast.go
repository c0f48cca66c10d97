package dedup

import (
	"context"
	"io"
	"sync"

	"palisade-hq/bulwark/pkg/providers"
)

// broadcast fans one event sequence out to any number of subscribers.
//
// Published events are kept in a replay buffer so late joiners observe the
// full sequence from the start. After finish, the buffer stays readable
// until the last subscriber leaves.
type broadcast struct {
	mu     sync.Mutex
	events []providers.ChatEvent
	done   bool
	err    error

	// wake is closed and replaced on every publish so blocked readers
	// re-check the buffer
	wake chan struct{}
}

func newBroadcast() *broadcast {
	return &broadcast{wake: make(chan struct{})}
}

// publish appends one event and wakes blocked subscribers.
func (b *broadcast) publish(ev providers.ChatEvent) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.events = append(b.events, ev)
	close(b.wake)
	b.wake = make(chan struct{})
	b.mu.Unlock()
}

// finish seals the sequence. A nil err means a normal end; subscribers that
// drain the buffer then receive io.EOF.
func (b *broadcast) finish(err error) {
	if err == nil {
		err = io.EOF
	}

	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.err = err
	close(b.wake)
	b.mu.Unlock()
}

// next returns the event at pos, blocking until it is published, the
// sequence finishes, or ctx is cancelled.
func (b *broadcast) next(ctx context.Context, pos int) (*providers.ChatEvent, error) {
	for {
		b.mu.Lock()
		if pos < len(b.events) {
			ev := b.events[pos]
			b.mu.Unlock()
			return &ev, nil
		}
		if b.done {
			err := b.err
			b.mu.Unlock()
			return nil, err
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}
