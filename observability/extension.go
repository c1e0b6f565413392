// Package observability provides a metrics hook for Custody that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/hook"
	"github.com/xraph/custody/record"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ hook.Hook                 = (*MetricsExtension)(nil)
	_ hook.OnInit               = (*MetricsExtension)(nil)
	_ hook.OnRecordCreated      = (*MetricsExtension)(nil)
	_ hook.OnStatusChanged      = (*MetricsExtension)(nil)
	_ hook.OnOwnerChanged       = (*MetricsExtension)(nil)
	_ hook.OnJournalFailed      = (*MetricsExtension)(nil)
	_ hook.OnDetectionDropped   = (*MetricsExtension)(nil)
	_ hook.OnStreamStateChanged = (*MetricsExtension)(nil)
	_ hook.OnAutoWriteFailed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Custody hook to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Record metrics
	RecordsCreated   Counter
	StatusChanges    Counter
	OwnershipChanges Counter
	JournalFailures  Counter
	DetectionConf    Histogram

	// Stream metrics
	DetectionsDropped Counter
	StreamReconnects  Counter
	StreamOpens       Counter

	// Bridge metrics
	AutoWriteFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Record metrics
		RecordsCreated:   factory.Counter("custody.record.created"),
		StatusChanges:    factory.Counter("custody.record.status_changed"),
		OwnershipChanges: factory.Counter("custody.record.owner_changed"),
		JournalFailures:  factory.Counter("custody.record.journal_failures"),
		DetectionConf:    factory.Histogram("custody.detection.confidence"),

		// Stream metrics
		DetectionsDropped: factory.Counter("custody.stream.dropped"),
		StreamReconnects:  factory.Counter("custody.stream.reconnects"),
		StreamOpens:       factory.Counter("custody.stream.opens"),

		// Bridge metrics
		AutoWriteFailures: factory.Counter("custody.bridge.write_failures"),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements hook.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Record lifecycle hooks
// ──────────────────────────────────────────────────

// OnRecordCreated implements hook.OnRecordCreated.
func (m *MetricsExtension) OnRecordCreated(_ context.Context, _ record.Change) error {
	m.RecordsCreated.Inc()
	return nil
}

// OnStatusChanged implements hook.OnStatusChanged.
func (m *MetricsExtension) OnStatusChanged(_ context.Context, _ record.Change) error {
	m.StatusChanges.Inc()
	return nil
}

// OnOwnerChanged implements hook.OnOwnerChanged.
func (m *MetricsExtension) OnOwnerChanged(_ context.Context, _ record.Change) error {
	m.OwnershipChanges.Inc()
	return nil
}

// OnJournalFailed implements hook.OnJournalFailed.
func (m *MetricsExtension) OnJournalFailed(_ context.Context, _ record.Change, _ error) error {
	m.JournalFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnDetectionDropped implements hook.OnDetectionDropped.
func (m *MetricsExtension) OnDetectionDropped(_ context.Context, ev event.Detection, _ uint64) error {
	m.DetectionsDropped.Inc()
	if ev.Confidence > 0 {
		m.DetectionConf.Observe(ev.Confidence)
	}
	return nil
}

// OnStreamStateChanged implements hook.OnStreamStateChanged.
func (m *MetricsExtension) OnStreamStateChanged(_ context.Context, from, to string) error {
	if to == "open" {
		m.StreamOpens.Inc()
	}
	// A live connection falling back to connecting is a redial.
	if from == "open" && to == "connecting" {
		m.StreamReconnects.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Bridge lifecycle hooks
// ──────────────────────────────────────────────────

// OnAutoWriteFailed implements hook.OnAutoWriteFailed.
func (m *MetricsExtension) OnAutoWriteFailed(_ context.Context, _ event.Detection, _ error) error {
	m.AutoWriteFailures.Inc()
	return nil
}
