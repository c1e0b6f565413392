package bridge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/custody/bridge"
	"github.com/xraph/custody/event"
	"github.com/xraph/custody/hook"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/record"
	"github.com/xraph/custody/session"
)

// fakeWriter records issued creates.
type fakeWriter struct {
	mu      sync.Mutex
	created []string
	err     error
	nextID  record.ID
}

func (w *fakeWriter) Create(_ context.Context, itemType string) (*record.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return nil, w.err
	}
	w.nextID++
	w.created = append(w.created, itemType)
	return &record.Record{ID: w.nextID, ItemType: itemType, Status: record.StatusGenerated}, nil
}

func (w *fakeWriter) itemTypes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.created...)
}

func boundSession(t *testing.T) *session.Binding {
	t.Helper()
	b := session.New()
	if err := b.Bind("alice"); err != nil {
		t.Fatal(err)
	}
	return b
}

func detected(class string) event.Detection {
	return event.Detection{
		ID:        id.NewDetectionID(),
		Type:      event.TypeDetected,
		ClassName: class,
		Timestamp: time.Now().UTC(),
	}
}

func TestDisabledBridgeDiscards(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t))

	b.Handle(context.Background(), detected("bottle"))

	if got := w.itemTypes(); len(got) != 0 {
		t.Errorf("disabled bridge issued creates: %v", got)
	}
	if s := b.Stats(); s.Discarded != 1 || s.Written != 0 {
		t.Errorf("stats = %+v, want 1 discarded", s)
	}
}

func TestNoIdentityDiscards(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, session.New(), bridge.WithEnabled(true))

	b.Handle(context.Background(), detected("bottle"))

	if got := w.itemTypes(); len(got) != 0 {
		t.Errorf("bridge with no identity issued creates: %v", got)
	}
	if s := b.Stats(); s.Discarded != 1 {
		t.Errorf("stats = %+v, want 1 discarded", s)
	}
}

func TestUnrecognizedTypeDiscards(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t), bridge.WithEnabled(true))

	ev := detected("bottle")
	ev.Type = "heartbeat"
	b.Handle(context.Background(), ev)

	if got := w.itemTypes(); len(got) != 0 {
		t.Errorf("unrecognized event issued creates: %v", got)
	}
}

func TestRecognizedEventsCreateRecords(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t), bridge.WithEnabled(true))
	ctx := context.Background()

	b.Handle(ctx, detected("bottle"))

	classified := detected("cell phone")
	classified.Type = event.TypeClassified
	b.Handle(ctx, classified)

	got := w.itemTypes()
	if len(got) != 2 {
		t.Fatalf("creates = %v, want 2", got)
	}
	if got[0] != "Plastic" || got[1] != "E-Waste" {
		t.Errorf("item types = %v, want [Plastic E-Waste]", got)
	}
	if s := b.Stats(); s.Written != 2 {
		t.Errorf("stats = %+v, want 2 written", s)
	}
}

func TestConsecutiveSightingsAreNotDeduped(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t), bridge.WithEnabled(true))
	ctx := context.Background()

	b.Handle(ctx, detected("bottle"))
	b.Handle(ctx, detected("bottle"))

	if got := w.itemTypes(); len(got) != 2 {
		t.Errorf("creates = %v, want two records for two sightings", got)
	}
}

func TestUnmappedClassFallsBackToUnknown(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t), bridge.WithEnabled(true))
	ctx := context.Background()

	b.Handle(ctx, detected("zeppelin"))
	b.Handle(ctx, detected("")) // className absent

	got := w.itemTypes()
	if len(got) != 2 {
		t.Fatalf("creates = %v, want 2", got)
	}
	for i, it := range got {
		if it != bridge.FallbackItemType {
			t.Errorf("create[%d] item type = %q, want %q", i, it, bridge.FallbackItemType)
		}
	}
}

func TestCustomClassMap(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t),
		bridge.WithEnabled(true),
		bridge.WithClassMap(map[string]string{"crate": "Wood"}),
	)

	b.Handle(context.Background(), detected("crate"))

	if got := w.itemTypes(); len(got) != 1 || got[0] != "Wood" {
		t.Errorf("creates = %v, want [Wood]", got)
	}
}

// failureHook captures auto-write failure notifications.
type failureHook struct {
	mu     sync.Mutex
	events []event.Detection
	errs   []error
}

func (h *failureHook) Name() string { return "failure-recorder" }

func (h *failureHook) OnAutoWriteFailed(_ context.Context, ev event.Detection, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	h.errs = append(h.errs, err)
	return nil
}

func TestWriteFailureIsSurfacedNotRetried(t *testing.T) {
	wantErr := errors.New("store down")
	w := &fakeWriter{err: wantErr}

	hooks := hook.NewRegistry()
	fh := &failureHook{}
	if err := hooks.Register(fh); err != nil {
		t.Fatal(err)
	}

	b := bridge.New(w, boundSession(t), bridge.WithEnabled(true), bridge.WithHooks(hooks))
	b.Handle(context.Background(), detected("bottle"))

	if s := b.Stats(); s.Failed != 1 || s.Written != 0 {
		t.Errorf("stats = %+v, want 1 failed", s)
	}
	fh.mu.Lock()
	defer fh.mu.Unlock()
	if len(fh.errs) != 1 || !errors.Is(fh.errs[0], wantErr) {
		t.Errorf("hook errors = %v, want [%v]", fh.errs, wantErr)
	}
}

func TestEnableDisableToggle(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t))
	ctx := context.Background()

	if b.Enabled() {
		t.Error("bridge should start disabled")
	}
	b.Enable()
	b.Handle(ctx, detected("bottle"))
	b.Disable()
	b.Handle(ctx, detected("bottle"))

	if got := w.itemTypes(); len(got) != 1 {
		t.Errorf("creates = %v, want exactly 1 while enabled", got)
	}
}

func TestRunConsumesUntilChannelCloses(t *testing.T) {
	w := &fakeWriter{}
	b := bridge.New(w, boundSession(t), bridge.WithEnabled(true))

	events := make(chan event.Detection, 2)
	events <- detected("bottle")
	events <- detected("cup")
	close(events)

	b.Run(context.Background(), events)

	if got := w.itemTypes(); len(got) != 2 {
		t.Errorf("creates = %v, want 2", got)
	}
}
