// Package stream maintains a live feed of detection events over a
// reconnecting connection. The channel survives source restarts: a lost
// connection moves it back to connecting and it redials with capped
// exponential backoff until stopped.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/hook"
)

// State is the lifecycle state of a Channel.
type State string

const (
	// StateClosed means the channel is not running: never started, or stopped.
	StateClosed State = "closed"
	// StateConnecting means the channel is dialing (or redialing) the source.
	StateConnecting State = "connecting"
	// StateOpen means a connection is live and events are flowing.
	StateOpen State = "open"
)

// ErrAlreadyStarted is returned by Start on a running or stopped channel.
var ErrAlreadyStarted = errors.New("custody/stream: channel already started")

// Conn is a single live connection to the detection source.
type Conn interface {
	// Recv blocks until the next detection arrives or the connection fails.
	Recv(ctx context.Context) (event.Detection, error)
	Close() error
}

// Dialer opens connections to the detection source.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Stats is a point-in-time snapshot of channel counters.
type Stats struct {
	Received   uint64
	Dropped    uint64
	Reconnects uint64
	State      State
}

const (
	defaultBuffer     = 256
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBuffer sets the delivery buffer capacity. When the buffer is full the
// oldest buffered event is discarded to admit the newest.
func WithBuffer(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithBackoff bounds the redial backoff.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Channel) {
		if min > 0 {
			c.minBackoff = min
		}
		if max >= c.minBackoff {
			c.maxBackoff = max
		}
	}
}

// WithHooks attaches a hook registry for drop and state-change notifications.
func WithHooks(hooks *hook.Registry) Option {
	return func(c *Channel) {
		if hooks != nil {
			c.hooks = hooks
		}
	}
}

// Channel is a reconnecting, bounded-buffer feed of detections.
//
// Consumers read from Events(). The channel never blocks on a slow
// consumer: when the buffer is full the oldest event is dropped, counted,
// and reported through OnDetectionDropped hooks.
type Channel struct {
	dialer Dialer
	logger *slog.Logger
	hooks  *hook.Registry

	buffer     int
	minBackoff time.Duration
	maxBackoff time.Duration

	out chan event.Detection

	received   atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64

	mu      sync.Mutex
	state   State
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Channel around the given dialer. The channel is inert until
// Start is called.
func New(dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer:     dialer,
		logger:     slog.Default(),
		buffer:     defaultBuffer,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		state:      StateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.out = make(chan event.Detection, c.buffer)
	return c
}

// Events is the consumer side of the channel. It is closed by Stop.
func (c *Channel) Events() <-chan event.Detection { return c.out }

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Received:   c.received.Load(),
		Dropped:    c.dropped.Load(),
		Reconnects: c.reconnects.Load(),
		State:      c.State(),
	}
}

// Start begins dialing and delivering events. It returns immediately; the
// dial/receive loop runs until Stop.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Stop tears the channel down immediately: the connection is closed, the
// loop exits, and Events() is closed. Stop is idempotent.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if !c.started || c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.cancel = nil
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	close(c.out)
	c.setState(StateClosed)
	return nil
}

// run is the dial/receive loop. One connection at a time; any receive error
// tears the connection down and redials.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	backoff := c.minBackoff
	first := true

	for {
		c.setState(StateConnecting)

		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("detection stream dial failed",
				"error", err,
				"retry_in", backoff,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		backoff = c.minBackoff
		if !first {
			c.reconnects.Add(1)
		}
		first = false
		c.setState(StateOpen)
		c.logger.Info("detection stream connected")

		c.receive(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("detection stream disconnected, reconnecting")
	}
}

// receive pumps one connection until it fails or the channel is stopped.
func (c *Channel) receive(ctx context.Context, conn Conn) {
	for {
		ev, err := conn.Recv(ctx)
		if err != nil {
			return
		}
		c.received.Add(1)
		c.publish(ctx, ev)
	}
}

// publish delivers into the bounded buffer, evicting the oldest buffered
// event when full. The newest event always wins a full buffer.
func (c *Channel) publish(ctx context.Context, ev event.Detection) {
	select {
	case c.out <- ev:
		return
	default:
	}

	// Buffer full: evict one, then retry once. A consumer may race the
	// eviction; if the retry still fails the new event is the casualty.
	select {
	case old := <-c.out:
		c.recordDrop(ctx, old)
	default:
	}

	select {
	case c.out <- ev:
	default:
		c.recordDrop(ctx, ev)
	}
}

func (c *Channel) recordDrop(ctx context.Context, ev event.Detection) {
	total := c.dropped.Add(1)
	c.logger.Warn("detection dropped, buffer full",
		"event_id", ev.ID,
		"dropped_total", total,
	)
	if c.hooks != nil {
		c.hooks.EmitDetectionDropped(ctx, ev, total)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()

	if old != s && c.hooks != nil {
		c.hooks.EmitStreamStateChanged(context.Background(), string(old), string(s))
	}
}
