package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/id"
)

// envelope is the wire frame sent by the detection source. A single frame
// batches the detections observed in one capture tick.
type envelope struct {
	Type      string          `json:"type"`
	Events    []detectionWire `json:"events"`
	Timestamp wireTime        `json:"timestamp"`
}

// detectionWire carries one detection. Sources disagree on the key for the
// event kind: some send "type", others "event_type". Both are accepted,
// "type" winning when present.
type detectionWire struct {
	Type       string   `json:"type"`
	EventType  string   `json:"event_type"`
	ClassName  string   `json:"class_name"`
	Confidence float64  `json:"confidence"`
	Timestamp  wireTime `json:"timestamp"`
}

func (w detectionWire) toDetection(frame wireTime) event.Detection {
	typ := w.Type
	if typ == "" {
		typ = w.EventType
	}
	ts := w.Timestamp.t
	if ts.IsZero() {
		ts = frame.t
	}
	if ts.IsZero() {
		// The source is live, not historical.
		ts = time.Now().UTC()
	}
	return event.Detection{
		ID:         id.NewDetectionID(),
		Type:       event.Type(typ),
		ClassName:  w.ClassName,
		Confidence: w.Confidence,
		Timestamp:  ts,
	}
}

// wireTime decodes the source's timestamp field, which appears either as a
// fractional unix epoch or as an ISO-8601 string (with or without a zone;
// zoneless values are taken as UTC).
type wireTime struct {
	t time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func (w *wireTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		for _, layout := range wireTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				w.t = t.UTC()
				return nil
			}
		}
		return fmt.Errorf("custody/stream: unsupported timestamp %q", s)
	}
	var epoch float64
	if err := json.Unmarshal(data, &epoch); err != nil {
		return err
	}
	if epoch != 0 {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		w.t = time.Unix(sec, nsec).UTC()
	}
	return nil
}

// WebSocketDialer dials a detection source speaking the websocket event
// protocol.
type WebSocketDialer struct {
	// URL of the detection source, e.g. "ws://localhost:8000/ws/events".
	URL string
	// DialOptions are passed through to the websocket handshake.
	DialOptions *websocket.DialOptions
}

var _ Dialer = (*WebSocketDialer)(nil)

// Dial opens a websocket connection to the source.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, d.URL, d.DialOptions)
	if err != nil {
		return nil, fmt.Errorf("custody/stream: dial %s: %w", d.URL, err)
	}
	// Source frames batch an unbounded number of detections.
	ws.SetReadLimit(1 << 20)
	return &wsConn{ws: ws}, nil
}

// wsConn adapts a websocket connection to the Conn interface, unbatching
// envelope frames into single detections.
type wsConn struct {
	ws      *websocket.Conn
	pending []event.Detection
}

func (c *wsConn) Recv(ctx context.Context) (event.Detection, error) {
	for len(c.pending) == 0 {
		var env envelope
		if err := wsjson.Read(ctx, c.ws, &env); err != nil {
			return event.Detection{}, err
		}
		if env.Type != "event" {
			// Heartbeats and unknown frame types are skipped.
			continue
		}
		for _, w := range env.Events {
			c.pending = append(c.pending, w.toDetection(env.Timestamp))
		}
	}

	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
