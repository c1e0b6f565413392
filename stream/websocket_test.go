package stream

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeDecodesIsoTimestampFrames(t *testing.T) {
	// Detectors that serialize datetimes as strings send a zoneless
	// ISO-8601 frame timestamp and key events by event_type.
	frame := `{
		"type": "event",
		"events": [
			{"event_type": "detected", "class_name": "bottle", "confidence": 0.91},
			{"event_type": "classified", "class_name": "cell phone", "confidence": 0.78}
		],
		"timestamp": "2026-08-26T15:04:05.123456"
	}`

	var env envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		t.Fatalf("decode detector frame: %v", err)
	}
	if env.Type != "event" {
		t.Fatalf("envelope type = %q, want event", env.Type)
	}
	wantTS := time.Date(2026, 8, 26, 15, 4, 5, 123456000, time.UTC)
	if !env.Timestamp.t.Equal(wantTS) {
		t.Errorf("frame timestamp = %v, want %v", env.Timestamp.t, wantTS)
	}
	if len(env.Events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(env.Events))
	}

	first := env.Events[0].toDetection(env.Timestamp)
	if string(first.Type) != "detected" {
		t.Errorf("event type = %q, want detected (event_type key)", first.Type)
	}
	if first.ClassName != "bottle" || first.Confidence != 0.91 {
		t.Errorf("event payload = %q/%v, want bottle/0.91", first.ClassName, first.Confidence)
	}
	// Events carry no timestamp of their own: the frame's applies.
	if !first.Timestamp.Equal(wantTS) {
		t.Errorf("event timestamp = %v, want frame timestamp %v", first.Timestamp, wantTS)
	}

	second := env.Events[1].toDetection(env.Timestamp)
	if string(second.Type) != "classified" || second.ClassName != "cell phone" {
		t.Errorf("second event = %q/%q, want classified/cell phone", second.Type, second.ClassName)
	}
}

func TestEnvelopeDecodesEpochFramesWithTypeKey(t *testing.T) {
	frame := `{
		"type": "event",
		"events": [
			{"type": "detected", "class_name": "cup", "confidence": 0.5, "timestamp": 1756220645.5}
		],
		"timestamp": 1756220640.25
	}`

	var env envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		t.Fatalf("decode epoch frame: %v", err)
	}
	if got, want := env.Timestamp.t, time.Unix(1756220640, 250000000).UTC(); !got.Equal(want) {
		t.Errorf("frame timestamp = %v, want %v", got, want)
	}

	ev := env.Events[0].toDetection(env.Timestamp)
	if string(ev.Type) != "detected" || ev.ClassName != "cup" {
		t.Errorf("event = %q/%q, want detected/cup", ev.Type, ev.ClassName)
	}
	// The event's own timestamp wins over the frame's.
	if got, want := ev.Timestamp, time.Unix(1756220645, 500000000).UTC(); !got.Equal(want) {
		t.Errorf("event timestamp = %v, want %v", got, want)
	}
}

func TestWireTimeDecoding(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2026-08-26T15:04:05Z"`, time.Date(2026, 8, 26, 15, 4, 5, 0, time.UTC)},
		{"rfc3339_offset", `"2026-08-26T17:04:05+02:00"`, time.Date(2026, 8, 26, 15, 4, 5, 0, time.UTC)},
		{"zoneless_micros", `"2026-08-26T15:04:05.000001"`, time.Date(2026, 8, 26, 15, 4, 5, 1000, time.UTC)},
		{"epoch_float", `1756220645.5`, time.Unix(1756220645, 500000000).UTC()},
		{"epoch_int", `1756220645`, time.Unix(1756220645, 0).UTC()},
		{"null", `null`, time.Time{}},
		{"empty_string", `""`, time.Time{}},
		{"zero_epoch", `0`, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var w wireTime
			if err := json.Unmarshal([]byte(tc.in), &w); err != nil {
				t.Fatalf("decode %s: %v", tc.in, err)
			}
			if !w.t.Equal(tc.want) {
				t.Errorf("decoded %v, want %v", w.t, tc.want)
			}
		})
	}

	var w wireTime
	if err := json.Unmarshal([]byte(`"yesterday"`), &w); err == nil {
		t.Error("expected error decoding non-timestamp string")
	}
}
