// Package hook provides an extensible hook system for the custody ledger.
// Hooks observe lifecycle events — record mutations, stream transitions,
// auto-write outcomes — to extend functionality without touching the core.
package hook

import (
	"context"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/record"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Hook
	OnInit(ctx context.Context, ledger interface{}) error
}

// OnShutdown is called when the ledger is shutting down.
type OnShutdown interface {
	Hook
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Record change hooks
// ──────────────────────────────────────────────────

// OnRecordCreated is called when a new record is created.
type OnRecordCreated interface {
	Hook
	OnRecordCreated(ctx context.Context, ch record.Change) error
}

// OnStatusChanged is called when a record's status is overwritten.
// Re-submitting an identical status is an accepted write and fires again.
type OnStatusChanged interface {
	Hook
	OnStatusChanged(ctx context.Context, ch record.Change) error
}

// OnOwnerChanged is called when custody of a record is transferred.
type OnOwnerChanged interface {
	Hook
	OnOwnerChanged(ctx context.Context, ch record.Change) error
}

// OnChange is the ordered catch-all feed: called once per accepted
// mutation of any kind, in acceptance order. Implement this for consumers
// (dashboards, projections) that need the full change sequence.
type OnChange interface {
	Hook
	OnChange(ctx context.Context, ch record.Change) error
}

// OnJournalFailed is called when an accepted mutation's journal append
// fails. The mutation itself stands and its notification is still
// delivered; this hook is the trace that History is missing the entry.
type OnJournalFailed interface {
	Hook
	OnJournalFailed(ctx context.Context, ch record.Change, err error) error
}

// ──────────────────────────────────────────────────
// Ingestion hooks
// ──────────────────────────────────────────────────

// OnDetectionDropped is called when the ingestion channel sheds an event
// under backpressure (drop-oldest overflow). total is the running count
// of dropped events for the channel.
type OnDetectionDropped interface {
	Hook
	OnDetectionDropped(ctx context.Context, ev event.Detection, total uint64) error
}

// OnStreamStateChanged is called on every ingestion channel transition
// (closed/connecting/open).
type OnStreamStateChanged interface {
	Hook
	OnStreamStateChanged(ctx context.Context, from, to string) error
}

// OnAutoWriteFailed is called when the auto-write bridge issued a create
// for a detection event and the ledger rejected it. The bridge never
// retries; this hook is the observable trace of the failure.
type OnAutoWriteFailed interface {
	Hook
	OnAutoWriteFailed(ctx context.Context, ev event.Detection, err error) error
}
