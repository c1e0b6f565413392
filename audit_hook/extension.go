// Package audithook bridges Custody lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/hook"
	"github.com/xraph/custody/record"
)

// Compile-time interface checks.
var (
	_ hook.Hook                 = (*Extension)(nil)
	_ hook.OnRecordCreated      = (*Extension)(nil)
	_ hook.OnStatusChanged      = (*Extension)(nil)
	_ hook.OnOwnerChanged       = (*Extension)(nil)
	_ hook.OnJournalFailed      = (*Extension)(nil)
	_ hook.OnDetectionDropped   = (*Extension)(nil)
	_ hook.OnStreamStateChanged = (*Extension)(nil)
	_ hook.OnAutoWriteFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Custody lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Record lifecycle hooks
// ──────────────────────────────────────────────────

// OnRecordCreated implements hook.OnRecordCreated.
func (e *Extension) OnRecordCreated(ctx context.Context, ch record.Change) error {
	return e.record(ctx, ActionRecordCreated, SeverityInfo, OutcomeSuccess,
		ResourceRecord, ch.RecordID.String(), CategoryCustody, nil,
		"actor", ch.Actor.String(),
		"item_type", ch.ItemType,
		"status", ch.Status,
	)
}

// OnStatusChanged implements hook.OnStatusChanged.
func (e *Extension) OnStatusChanged(ctx context.Context, ch record.Change) error {
	return e.record(ctx, ActionStatusChanged, SeverityInfo, OutcomeSuccess,
		ResourceRecord, ch.RecordID.String(), CategoryCustody, nil,
		"actor", ch.Actor.String(),
		"status", ch.Status,
	)
}

// OnOwnerChanged implements hook.OnOwnerChanged.
func (e *Extension) OnOwnerChanged(ctx context.Context, ch record.Change) error {
	return e.record(ctx, ActionOwnerChanged, SeverityInfo, OutcomeSuccess,
		ResourceRecord, ch.RecordID.String(), CategoryCustody, nil,
		"actor", ch.Actor.String(),
		"from", ch.From.String(),
		"to", ch.To.String(),
	)
}

// OnJournalFailed implements hook.OnJournalFailed. The mutation stands; the
// audit trail flags that the change journal is missing its entry.
func (e *Extension) OnJournalFailed(ctx context.Context, ch record.Change, err error) error {
	return e.record(ctx, ActionJournalFailed, SeverityError, OutcomeFailure,
		ResourceRecord, ch.RecordID.String(), CategoryCustody, err,
		"actor", ch.Actor.String(),
		"kind", string(ch.Kind),
	)
}

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnDetectionDropped implements hook.OnDetectionDropped.
func (e *Extension) OnDetectionDropped(ctx context.Context, ev event.Detection, total uint64) error {
	return e.record(ctx, ActionDetectionDropped, SeverityWarning, OutcomeFailure,
		ResourceDetection, ev.ID.String(), CategoryIngestion, nil,
		"event_type", string(ev.Type),
		"class_name", ev.ClassName,
		"dropped_total", total,
	)
}

// OnStreamStateChanged implements hook.OnStreamStateChanged.
func (e *Extension) OnStreamStateChanged(ctx context.Context, from, to string) error {
	severity := SeverityInfo
	if to == "connecting" && from == "open" {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionStreamState, severity, OutcomeSuccess,
		ResourceStream, "", CategoryIngestion, nil,
		"from", from,
		"to", to,
	)
}

// ──────────────────────────────────────────────────
// Bridge lifecycle hooks
// ──────────────────────────────────────────────────

// OnAutoWriteFailed implements hook.OnAutoWriteFailed.
func (e *Extension) OnAutoWriteFailed(ctx context.Context, ev event.Detection, err error) error {
	return e.record(ctx, ActionAutoWriteFailed, SeverityError, OutcomeFailure,
		ResourceDetection, ev.ID.String(), CategoryIngestion, err,
		"event_type", string(ev.Type),
		"class_name", ev.ClassName,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
