package stream_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/stream"
)

// scriptConn replays a fixed set of detections, then fails.
type scriptConn struct {
	events []event.Detection
	pos    int
	closed atomic.Bool
}

var errConnLost = errors.New("connection lost")

func (c *scriptConn) Recv(ctx context.Context) (event.Detection, error) {
	if c.pos >= len(c.events) {
		// Block until the channel is stopped or the script says we died.
		<-ctx.Done()
		return event.Detection{}, ctx.Err()
	}
	ev := c.events[c.pos]
	c.pos++
	return ev, nil
}

func (c *scriptConn) Close() error {
	c.closed.Store(true)
	return nil
}

// failThenRecv fails its first Recv, simulating a mid-stream disconnect.
type failingConn struct{ scriptConn }

func (c *failingConn) Recv(ctx context.Context) (event.Detection, error) {
	if c.pos == 0 && len(c.events) == 0 {
		return event.Detection{}, errConnLost
	}
	return c.scriptConn.Recv(ctx)
}

// scriptDialer hands out one conn per Dial call.
type scriptDialer struct {
	mu    chan struct{} // buffered-1 as a mutex-free gate
	conns []stream.Conn
	dials atomic.Int32
	errs  int // number of leading Dial calls that fail
}

func newScriptDialer(errs int, conns ...stream.Conn) *scriptDialer {
	d := &scriptDialer{mu: make(chan struct{}, 1), conns: conns, errs: errs}
	d.mu <- struct{}{}
	return d
}

func (d *scriptDialer) Dial(ctx context.Context) (stream.Conn, error) {
	<-d.mu
	defer func() { d.mu <- struct{}{} }()

	n := int(d.dials.Add(1))
	if n <= d.errs {
		return nil, errors.New("dial refused")
	}
	idx := n - d.errs - 1
	if idx >= len(d.conns) {
		// Out of scripted conns: block until stopped.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return d.conns[idx], nil
}

func det(class string) event.Detection {
	return event.Detection{
		ID:        id.NewDetectionID(),
		Type:      event.TypeDetected,
		ClassName: class,
		Timestamp: time.Now().UTC(),
	}
}

func collect(t *testing.T, ch <-chan event.Detection, n int) []event.Detection {
	t.Helper()
	out := make([]event.Detection, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed after %d of %d events", len(out), n)
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestChannelDeliversInOrder(t *testing.T) {
	conn := &scriptConn{events: []event.Detection{det("plastic"), det("metal"), det("glass")}}
	c := stream.New(newScriptDialer(0, conn))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	got := collect(t, c.Events(), 3)
	for i, want := range []string{"plastic", "metal", "glass"} {
		if got[i].ClassName != want {
			t.Errorf("event[%d].ClassName = %q, want %q", i, got[i].ClassName, want)
		}
	}
	if s := c.Stats(); s.Received != 3 || s.Dropped != 0 {
		t.Errorf("stats = %+v, want 3 received, 0 dropped", s)
	}
}

func TestChannelReconnectsAfterConnFailure(t *testing.T) {
	dead := &failingConn{}
	live := &scriptConn{events: []event.Detection{det("paper")}}
	d := newScriptDialer(0, dead, live)

	c := stream.New(d, stream.WithBackoff(time.Millisecond, 5*time.Millisecond))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	got := collect(t, c.Events(), 1)
	if got[0].ClassName != "paper" {
		t.Errorf("ClassName = %q, want paper", got[0].ClassName)
	}
	if !dead.closed.Load() {
		t.Error("failed connection was not closed")
	}
	if s := c.Stats(); s.Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", s.Reconnects)
	}
}

func TestChannelRetriesDialWithBackoff(t *testing.T) {
	conn := &scriptConn{events: []event.Detection{det("metal")}}
	d := newScriptDialer(3, conn)

	c := stream.New(d, stream.WithBackoff(time.Millisecond, 5*time.Millisecond))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	collect(t, c.Events(), 1)
	if n := d.dials.Load(); n != 4 {
		t.Errorf("dial attempts = %d, want 4", n)
	}
}

func TestChannelDropsOldestWhenFull(t *testing.T) {
	events := make([]event.Detection, 5)
	for i, class := range []string{"a", "b", "c", "d", "e"} {
		events[i] = det(class)
	}
	conn := &scriptConn{events: events}

	c := stream.New(newScriptDialer(0, conn), stream.WithBuffer(2))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Let the producer overrun the unread buffer, then drain.
	waitFor(t, func() bool { return c.Stats().Received == 5 })
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for ev := range c.Events() {
		got = append(got, ev.ClassName)
	}
	if len(got) != 2 {
		t.Fatalf("buffered events = %v, want 2 entries", got)
	}
	// Newest survive; oldest were evicted.
	if got[0] != "d" || got[1] != "e" {
		t.Errorf("buffered events = %v, want [d e]", got)
	}
	if s := c.Stats(); s.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", s.Dropped)
	}
}

func TestChannelStatesAndStop(t *testing.T) {
	conn := &scriptConn{}
	c := stream.New(newScriptDialer(0, conn))

	if c.State() != stream.StateClosed {
		t.Errorf("initial state = %q, want closed", c.State())
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.State() == stream.StateOpen })

	if err := c.Start(context.Background()); !errors.Is(err, stream.ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if c.State() != stream.StateClosed {
		t.Errorf("state after Stop = %q, want closed", c.State())
	}
	if _, ok := <-c.Events(); ok {
		t.Error("Events should be closed after Stop")
	}
	// Stop is idempotent.
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
