// Package bridge turns live detection events into ledger records. It is
// fire-and-forget by design: events that cannot become a write are
// discarded immediately, never queued, and a failed write is logged and
// surfaced through hooks but not retried.
package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/hook"
	"github.com/xraph/custody/record"
	"github.com/xraph/custody/session"
)

// FallbackItemType labels records created from detections whose class name
// is absent or unmapped.
const FallbackItemType = "Unknown"

// Writer is the ledger surface the bridge writes through.
type Writer interface {
	Create(ctx context.Context, itemType string) (*record.Record, error)
}

// Stats is a point-in-time snapshot of bridge counters.
type Stats struct {
	Received  uint64
	Discarded uint64
	Written   uint64
	Failed    uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHooks attaches a hook registry for write-failure notifications.
func WithHooks(hooks *hook.Registry) Option {
	return func(b *Bridge) {
		if hooks != nil {
			b.hooks = hooks
		}
	}
}

// WithClassMap replaces the default class-name to item-type mapping.
func WithClassMap(m map[string]string) Option {
	return func(b *Bridge) {
		if m != nil {
			b.classMap = m
		}
	}
}

// WithEnabled sets the initial toggle state. The bridge starts disabled
// unless this is used.
func WithEnabled(on bool) Option {
	return func(b *Bridge) { b.enabled.Store(on) }
}

// DefaultClassMap maps detector class names to item types. Unlisted
// classes fall back to FallbackItemType.
func DefaultClassMap() map[string]string {
	return map[string]string{
		"bottle":     "Plastic",
		"cup":        "Plastic",
		"bowl":       "Glass",
		"banana":     "Organic",
		"apple":      "Organic",
		"orange":     "Organic",
		"sandwich":   "Organic",
		"pizza":      "Organic",
		"cake":       "Organic",
		"book":       "Paper",
		"cell phone": "E-Waste",
	}
}

// Bridge consumes detections and issues ledger creates for the recognized
// ones. Every consecutive sighting becomes its own record: the ledger is
// an audit of intent and the bridge does no dedup.
type Bridge struct {
	writer   Writer
	binding  *session.Binding
	classMap map[string]string
	logger   *slog.Logger
	hooks    *hook.Registry

	enabled atomic.Bool

	received  atomic.Uint64
	discarded atomic.Uint64
	written   atomic.Uint64
	failed    atomic.Uint64
}

// New builds a Bridge writing through the given ledger surface under the
// given session binding.
func New(writer Writer, binding *session.Binding, opts ...Option) *Bridge {
	b := &Bridge{
		writer:   writer,
		binding:  binding,
		classMap: DefaultClassMap(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enable turns auto-writing on.
func (b *Bridge) Enable() { b.enabled.Store(true) }

// Disable turns auto-writing off. Events arriving while disabled are
// discarded, not queued.
func (b *Bridge) Disable() { b.enabled.Store(false) }

// Enabled reports the current toggle state.
func (b *Bridge) Enabled() bool { return b.enabled.Load() }

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Discarded: b.discarded.Load(),
		Written:   b.written.Load(),
		Failed:    b.failed.Load(),
	}
}

// Run consumes events until the channel closes or ctx is canceled. An
// in-flight write is never aborted by cancellation; only the consumption
// loop stops.
func (b *Bridge) Run(ctx context.Context, events <-chan event.Detection) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.Handle(ctx, ev)
		}
	}
}

// Handle applies the bridge's decision ladder to a single event.
func (b *Bridge) Handle(ctx context.Context, ev event.Detection) {
	b.received.Add(1)

	if !b.enabled.Load() {
		b.discard(ev, "bridge disabled")
		return
	}
	if _, err := b.binding.Current(); err != nil {
		b.discard(ev, "no bound identity")
		return
	}
	if !ev.Type.Recognized() {
		b.discard(ev, "unrecognized event type")
		return
	}

	itemType := b.itemType(ev.ClassName)

	// The write outlives a canceled consumption loop; a record half-born
	// out of a shutdown race is worse than a late one.
	rec, err := b.writer.Create(context.WithoutCancel(ctx), itemType)
	if err != nil {
		b.failed.Add(1)
		b.logger.Error("auto-write failed",
			"event_id", ev.ID,
			"item_type", itemType,
			"error", err,
		)
		if b.hooks != nil {
			b.hooks.EmitAutoWriteFailed(ctx, ev, err)
		}
		return
	}

	b.written.Add(1)
	b.logger.Debug("auto-write recorded",
		"event_id", ev.ID,
		"record_id", rec.ID,
		"item_type", itemType,
	)
}

func (b *Bridge) discard(ev event.Detection, reason string) {
	b.discarded.Add(1)
	b.logger.Debug("detection discarded",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"reason", reason,
	)
}

func (b *Bridge) itemType(className string) string {
	if v, ok := b.classMap[className]; ok {
		return v
	}
	return FallbackItemType
}
