package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-tello/pkg/events"
	"github.com/teslashibe/go-tello/pkg/vlm"
)

type stubBackend struct {
	answer string
	err    error
	block  bool // hold until the query context is cancelled
}

func (s *stubBackend) Ask(ctx context.Context, query string, jpeg []byte) (*vlm.Answer, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &vlm.Answer{Text: s.answer}, nil
}

func (s *stubBackend) Health(ctx context.Context) error { return nil }
func (s *stubBackend) Close() error                     { return nil }

func collect() (func(events.Event), chan events.Event) {
	ch := make(chan events.Event, 4)
	return func(ev events.Event) { ch <- ev }, ch
}

func await(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no result event delivered")
		return events.Event{}
	}
}

func TestFrameCache(t *testing.T) {
	c := NewFrameCache()

	if _, err := c.Frame(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty cache: got %v, want ErrNoFrame", err)
	}
	if c.Age() != 0 {
		t.Error("empty cache reported an age")
	}

	c.Put([]byte("frame-1"))
	c.Put(nil) // empty frames never evict a good one
	c.Put([]byte("frame-2"))

	got, err := c.Frame(context.Background())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if string(got) != "frame-2" {
		t.Errorf("frame: got %q, want latest", got)
	}
}

func TestManager_DeliversAnswer(t *testing.T) {
	frames := NewFrameCache()
	frames.Put([]byte("jpeg"))
	deliver, ch := collect()

	m := NewManager(&stubBackend{answer: "a chair"}, frames, time.Second, deliver)
	m.Begin(context.Background(), "q1", "what is this")

	ev := await(t, ch)
	if ev.Kind != events.KindVisionResult || ev.QueryID != "q1" {
		t.Fatalf("event: %+v", ev)
	}
	if ev.Answer != "a chair" || ev.Err != nil {
		t.Errorf("result: answer=%q err=%v", ev.Answer, ev.Err)
	}
}

func TestManager_DeliversFailure(t *testing.T) {
	frames := NewFrameCache()
	frames.Put([]byte("jpeg"))
	deliver, ch := collect()

	m := NewManager(&stubBackend{err: errors.New("backend down")}, frames, time.Second, deliver)
	m.Begin(context.Background(), "q1", "q")

	ev := await(t, ch)
	if ev.Err == nil {
		t.Error("backend failure not delivered")
	}
}

func TestManager_NoFrameFailsFast(t *testing.T) {
	deliver, ch := collect()
	m := NewManager(&stubBackend{answer: "unused"}, NewFrameCache(), time.Second, deliver)
	m.Begin(context.Background(), "q1", "q")

	ev := await(t, ch)
	if !errors.Is(ev.Err, ErrNoFrame) {
		t.Errorf("got %v, want ErrNoFrame", ev.Err)
	}
}

func TestManager_CancelOutstanding(t *testing.T) {
	frames := NewFrameCache()
	frames.Put([]byte("jpeg"))
	deliver, ch := collect()

	m := NewManager(&stubBackend{block: true}, frames, time.Minute, deliver)
	m.Begin(context.Background(), "q1", "q")
	m.CancelOutstanding()

	ev := await(t, ch)
	if ev.QueryID != "q1" || ev.Err == nil {
		t.Errorf("cancelled query result: %+v", ev)
	}
	// Cancelling again with nothing in flight is a no-op.
	m.CancelOutstanding()
}

func TestManager_TimeoutDelivered(t *testing.T) {
	frames := NewFrameCache()
	frames.Put([]byte("jpeg"))
	deliver, ch := collect()

	m := NewManager(&stubBackend{block: true}, frames, 20*time.Millisecond, deliver)
	m.Begin(context.Background(), "q1", "q")

	ev := await(t, ch)
	if !errors.Is(ev.Err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", ev.Err)
	}
}
