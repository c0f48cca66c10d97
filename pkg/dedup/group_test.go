package dedup

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// feedStream delivers events pushed through a channel, honoring ctx.
type feedStream struct {
	ch     chan providers.ChatEvent
	closed atomic.Bool
}

func newFeedStream() *feedStream {
	return &feedStream{ch: make(chan providers.ChatEvent, 16)}
}

func (s *feedStream) push(ev providers.ChatEvent) { s.ch <- ev }

func (s *feedStream) end() { close(s.ch) }

func (s *feedStream) Next(ctx context.Context) (*providers.ChatEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return &ev, nil
	}
}

func (s *feedStream) Close() error {
	s.closed.Store(true)
	return nil
}

func chunk(text string) providers.ChatEvent {
	return providers.ChatEvent{Type: providers.EventChunk, Text: text}
}

func endEvent() providers.ChatEvent {
	return providers.ChatEvent{Type: providers.EventEnd, FinishReason: providers.FinishReasonStop}
}

// drain reads a stream to completion and returns the event sequence.
func drain(t *testing.T, stream providers.EventStream) []providers.ChatEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []providers.ChatEvent
	for {
		ev, err := stream.Next(ctx)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		out = append(out, *ev)
	}
}

func TestGroup_ConcurrentCallersShareOneExecution(t *testing.T) {
	g := NewGroup(0, nil)

	var starts int32
	start := func(ctx context.Context) (providers.EventStream, error) {
		atomic.AddInt32(&starts, 1)
		s := newFeedStream()
		go func() {
			time.Sleep(20 * time.Millisecond)
			s.push(chunk("Hello"))
			s.push(chunk(" World"))
			s.push(endEvent())
			s.end()
		}()
		return s, nil
	}

	const callers = 8
	sequences := make([][]providers.ChatEvent, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream, _, err := g.Do(context.Background(), "fp-abc123", start)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			defer stream.Close()
			sequences[i] = drain(t, stream)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&starts); got != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", got)
	}
	for i, seq := range sequences {
		if len(seq) != 3 {
			t.Fatalf("caller %d: expected 3 events, got %d", i, len(seq))
		}
		if seq[0].Text != "Hello" || seq[1].Text != " World" {
			t.Errorf("caller %d: wrong chunk order: %+v", i, seq)
		}
		if !seq[2].Terminal() {
			t.Errorf("caller %d: last event not terminal", i)
		}
	}
}

func TestGroup_LateJoinerReplaysBufferedEvents(t *testing.T) {
	g := NewGroup(0, nil)
	feed := newFeedStream()

	first, joined, err := g.Do(context.Background(), "fp",
		func(ctx context.Context) (providers.EventStream, error) {
			return feed, nil
		})
	if err != nil || joined {
		t.Fatalf("first caller should start fresh, joined=%v err=%v", joined, err)
	}
	defer first.Close()

	feed.push(chunk("one"))
	feed.push(chunk("two"))

	// Let the pump publish before joining.
	ctx := context.Background()
	ev, err := first.Next(ctx)
	if err != nil || ev.Text != "one" {
		t.Fatalf("expected first chunk, got %+v, %v", ev, err)
	}

	second, joined, err := g.Do(ctx, "fp",
		func(ctx context.Context) (providers.EventStream, error) {
			t.Error("joining caller must not start a new execution")
			return nil, errors.New("unreachable")
		})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !joined {
		t.Fatal("second caller should report joined")
	}
	defer second.Close()

	feed.push(endEvent())
	feed.end()

	seq := drain(t, second)
	if len(seq) != 3 {
		t.Fatalf("late joiner should see the full sequence, got %d events", len(seq))
	}
	if seq[0].Text != "one" || seq[1].Text != "two" {
		t.Errorf("replay out of order: %+v", seq)
	}
}

func TestGroup_FingerprintsAreIndependent(t *testing.T) {
	g := NewGroup(0, nil)

	var starts int32
	start := func(ctx context.Context) (providers.EventStream, error) {
		atomic.AddInt32(&starts, 1)
		s := newFeedStream()
		s.push(endEvent())
		s.end()
		return s, nil
	}

	s1, _, _ := g.Do(context.Background(), "fp-1", start)
	s2, _, _ := g.Do(context.Background(), "fp-2", start)
	drain(t, s1)
	drain(t, s2)
	s1.Close()
	s2.Close()

	if got := atomic.LoadInt32(&starts); got != 2 {
		t.Errorf("distinct fingerprints should run separately, got %d starts", got)
	}
}

func TestGroup_EntryRemovedOnSettlement(t *testing.T) {
	g := NewGroup(0, nil)

	var starts int32
	start := func(ctx context.Context) (providers.EventStream, error) {
		atomic.AddInt32(&starts, 1)
		s := newFeedStream()
		s.push(endEvent())
		s.end()
		return s, nil
	}

	s1, _, _ := g.Do(context.Background(), "fp", start)
	drain(t, s1)
	s1.Close()

	// Settlement removes the tracking entry; the next identical request
	// starts fresh.
	deadline := time.Now().Add(time.Second)
	for g.Inflight() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.Inflight() != 0 {
		t.Fatal("settled entry was not removed")
	}

	s2, joined, _ := g.Do(context.Background(), "fp", start)
	drain(t, s2)
	s2.Close()

	if joined {
		t.Error("request after settlement must not join the finished entry")
	}
	if got := atomic.LoadInt32(&starts); got != 2 {
		t.Errorf("expected a fresh execution, got %d starts", got)
	}
}

func TestGroup_StartFailurePropagatesToAllSubscribers(t *testing.T) {
	g := NewGroup(0, nil)
	startErr := &providers.UpstreamError{Upstream: "u1", StatusCode: 503, Message: "unavailable"}

	gate := make(chan struct{})
	start := func(ctx context.Context) (providers.EventStream, error) {
		<-gate
		return nil, startErr
	}

	s1, _, _ := g.Do(context.Background(), "fp", start)
	s2, joined, _ := g.Do(context.Background(), "fp", start)
	if !joined {
		t.Fatal("second caller should join")
	}
	close(gate)

	ctx := context.Background()
	for i, s := range []providers.EventStream{s1, s2} {
		_, err := s.Next(ctx)
		var ue *providers.UpstreamError
		if !errors.As(err, &ue) {
			t.Errorf("subscriber %d: expected the start error, got %v", i, err)
		}
		s.Close()
	}
}

func TestGroup_LastLeaverCancelsSharedExecution(t *testing.T) {
	g := NewGroup(0, nil)

	cancelled := make(chan struct{})
	start := func(ctx context.Context) (providers.EventStream, error) {
		s := newFeedStream()
		go func() {
			<-ctx.Done()
			close(cancelled)
		}()
		return s, nil
	}

	s1, _, _ := g.Do(context.Background(), "fp", start)
	s2, _, _ := g.Do(context.Background(), "fp", start)

	s1.Close()
	select {
	case <-cancelled:
		t.Fatal("closing one of two subscribers must not cancel the execution")
	case <-time.After(50 * time.Millisecond):
	}

	s2.Close()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("last leaver should cancel the shared execution")
	}
}

func TestGroup_SubscriberCancellationDoesNotKillExecution(t *testing.T) {
	g := NewGroup(0, nil)
	feed := newFeedStream()

	s1, _, _ := g.Do(context.Background(), "fp",
		func(ctx context.Context) (providers.EventStream, error) {
			return feed, nil
		})
	defer s1.Close()

	cancelCtx, cancel := context.WithCancel(context.Background())
	s2, _, _ := g.Do(cancelCtx, "fp", nil)
	cancel()

	if _, err := s2.Next(cancelCtx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled subscriber should see its own cancellation, got %v", err)
	}
	s2.Close()

	// The shared execution is still live for the remaining subscriber.
	feed.push(chunk("still going"))
	ev, err := s1.Next(context.Background())
	if err != nil || ev.Text != "still going" {
		t.Fatalf("remaining subscriber should keep receiving, got %+v, %v", ev, err)
	}

	feed.push(endEvent())
	feed.end()
	drain(t, s1)
}

func TestGroup_TTLValveAllowsFreshExecution(t *testing.T) {
	g := NewGroup(30*time.Millisecond, nil)

	var starts int32
	feeds := make(chan *feedStream, 2)
	start := func(ctx context.Context) (providers.EventStream, error) {
		atomic.AddInt32(&starts, 1)
		s := newFeedStream()
		feeds <- s
		return s, nil
	}

	s1, _, _ := g.Do(context.Background(), "fp", start)
	defer s1.Close()
	first := <-feeds

	// Past the window the valve removes the tracking entry: an identical
	// request starts a second execution while the first stays alive.
	time.Sleep(50 * time.Millisecond)

	s2, joined, _ := g.Do(context.Background(), "fp", start)
	defer s2.Close()

	if joined {
		t.Error("request after the valve should not join the stale entry")
	}
	if got := atomic.LoadInt32(&starts); got != 2 {
		t.Errorf("expected 2 executions after valve, got %d", got)
	}
	if first.closed.Load() {
		t.Error("the valve must not tear down the underlying operation")
	}

	// The first subscriber still receives from the original execution.
	first.push(chunk("late"))
	ev, err := s1.Next(context.Background())
	if err != nil || ev.Text != "late" {
		t.Fatalf("original subscriber should still receive, got %+v, %v", ev, err)
	}
}

func TestGroup_OnJoinObserver(t *testing.T) {
	var joins int32
	g := NewGroup(0, func(fingerprint string) {
		if fingerprint != "fp" {
			t.Errorf("unexpected fingerprint %q", fingerprint)
		}
		atomic.AddInt32(&joins, 1)
	})
	feed := newFeedStream()

	s1, _, _ := g.Do(context.Background(), "fp",
		func(ctx context.Context) (providers.EventStream, error) {
			return feed, nil
		})
	s2, _, _ := g.Do(context.Background(), "fp", nil)
	s3, _, _ := g.Do(context.Background(), "fp", nil)

	if got := atomic.LoadInt32(&joins); got != 2 {
		t.Errorf("expected 2 join observations, got %d", got)
	}

	feed.push(endEvent())
	feed.end()
	for _, s := range []providers.EventStream{s1, s2, s3} {
		drain(t, s)
		s.Close()
	}
}
