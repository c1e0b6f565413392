// Package event defines the detection events consumed from an external
// detector. The detector itself (video/ML pipeline) is a black box; this
// library only sees its typed notifications.
package event

import (
	"time"

	"github.com/xraph/custody/id"
)

// Type tags a detection event.
type Type string

// Event types recognized by the auto-write bridge. The external detector
// may emit other tags; those pass through the ingestion channel but are
// discarded by the bridge.
const (
	TypeDetected   Type = "detected"
	TypeClassified Type = "classified"
)

// Recognized reports whether the type is one the auto-write bridge maps
// to a ledger write.
func (t Type) Recognized() bool {
	return t == TypeDetected || t == TypeClassified
}

// Detection is one sighting/classification of a physical item.
//
// Delivery is at-least-once at best: the external source offers no
// acknowledgment channel, events lost during a stream disruption are not
// recoverable, and ordering holds per connection only.
type Detection struct {
	ID         id.DetectionID `json:"id"`
	Type       Type           `json:"type"`
	ClassName  string         `json:"class_name,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
