package custody_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/custody"
	"github.com/xraph/custody/record"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/types"
)

func startLedger(t *testing.T, opts ...custody.Option) *custody.Ledger {
	t.Helper()
	l := custody.New(memory.New(), opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func bind(t *testing.T, l *custody.Ledger, who custody.Identity) {
	t.Helper()
	if err := l.Session().Bind(who); err != nil {
		t.Fatal(err)
	}
}

func TestCreateThenGet(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Plastic")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != 1 {
		t.Errorf("first record id = %d, want 1", rec.ID)
	}

	got, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ItemType != "Plastic" || got.Status != record.StatusGenerated || got.Owner != "alice" {
		t.Errorf("got %+v, want Plastic/Generated/alice", got)
	}
}

func TestIDsAreSequentialAndZeroNeverExists(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	for want := record.ID(1); want <= 3; want++ {
		rec, err := l.Create(ctx, "Metal")
		if err != nil {
			t.Fatal(err)
		}
		if rec.ID != want {
			t.Errorf("record id = %d, want %d", rec.ID, want)
		}
	}

	if _, err := l.Get(ctx, 0); !custody.IsNotFound(err) {
		t.Errorf("Get(0) error = %v, want not-found", err)
	}
	if _, err := l.Get(ctx, 99); !custody.IsNotFound(err) {
		t.Errorf("Get(99) error = %v, want not-found", err)
	}
}

func TestMutationsRequireBoundIdentity(t *testing.T) {
	l := startLedger(t)
	ctx := context.Background()

	if _, err := l.Create(ctx, "Plastic"); !errors.Is(err, custody.ErrNoIdentity) {
		t.Errorf("Create without identity error = %v, want ErrNoIdentity", err)
	}

	bind(t, l, "alice")
	rec, err := l.Create(ctx, "Plastic")
	if err != nil {
		t.Fatal(err)
	}

	l.Session().Disconnect()
	if _, err := l.SetStatus(ctx, rec.ID, "Collected"); !errors.Is(err, custody.ErrNoIdentity) {
		t.Errorf("SetStatus without identity error = %v, want ErrNoIdentity", err)
	}
	if _, err := l.Transfer(ctx, rec.ID, "bob"); !errors.Is(err, custody.ErrNoIdentity) {
		t.Errorf("Transfer without identity error = %v, want ErrNoIdentity", err)
	}

	// Reads stay open.
	if _, err := l.Get(ctx, rec.ID); err != nil {
		t.Errorf("Get without identity: %v", err)
	}
}

func TestMutationsMidResetAreRetryable(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Glass")
	if err != nil {
		t.Fatal(err)
	}

	l.Session().BeginReset()
	_, err = l.SetStatus(ctx, rec.ID, "Collected")
	if !errors.Is(err, custody.ErrNotReady) {
		t.Fatalf("mid-reset SetStatus error = %v, want ErrNotReady", err)
	}
	if !custody.IsRetryable(err) {
		t.Error("ErrNotReady should be retryable")
	}

	l.Session().CompleteReset()
	bind(t, l, "alice")
	if _, err := l.SetStatus(ctx, rec.ID, "Collected"); err != nil {
		t.Errorf("SetStatus after rebind: %v", err)
	}
}

func TestNonOwnerMutationsRejectedAndStatePreserved(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Plastic")
	if err != nil {
		t.Fatal(err)
	}

	bind(t, l, "mallory")
	if _, err := l.SetStatus(ctx, rec.ID, "Stolen"); !custody.IsUnauthorized(err) {
		t.Errorf("non-owner SetStatus error = %v, want unauthorized", err)
	}
	if _, err := l.Transfer(ctx, rec.ID, "mallory"); !custody.IsUnauthorized(err) {
		t.Errorf("non-owner Transfer error = %v, want unauthorized", err)
	}

	got, _ := l.Get(ctx, rec.ID)
	if got.Status != record.StatusGenerated || got.Owner != "alice" {
		t.Errorf("record mutated by rejected calls: %+v", got)
	}
}

func TestTransferReauthorizesAgainstNewOwner(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "E-Waste")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Transfer(ctx, rec.ID, "bob"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// alice is no longer the owner.
	if _, err := l.SetStatus(ctx, rec.ID, "Collected"); !custody.IsUnauthorized(err) {
		t.Errorf("previous owner SetStatus error = %v, want unauthorized", err)
	}

	bind(t, l, "bob")
	if _, err := l.SetStatus(ctx, rec.ID, "Collected"); err != nil {
		t.Errorf("new owner SetStatus: %v", err)
	}
}

func TestSelfTransferAndNoOpStatusAccepted(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Paper")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SetStatus(ctx, rec.ID, record.StatusGenerated); err != nil {
		t.Errorf("no-op SetStatus: %v", err)
	}
	if _, err := l.Transfer(ctx, rec.ID, "alice"); err != nil {
		t.Errorf("self Transfer: %v", err)
	}

	hist, err := l.History(ctx, rec.ID, record.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	// created + no-op status + self transfer: every accepted write journals.
	if len(hist) != 3 {
		t.Errorf("history has %d entries, want 3", len(hist))
	}
}

// changeCollector records the ordered change feed.
type changeCollector struct {
	mu      sync.Mutex
	changes []record.Change
}

func (c *changeCollector) Name() string { return "change-collector" }

func (c *changeCollector) OnChange(_ context.Context, ch record.Change) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
	return nil
}

func (c *changeCollector) snapshot() []record.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]record.Change(nil), c.changes...)
}

func TestExactlyOneOrderedNotificationPerMutation(t *testing.T) {
	collector := &changeCollector{}
	l := startLedger(t, custody.WithHook(collector))
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Plastic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SetStatus(ctx, rec.ID, "Collected"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SetStatus(ctx, rec.ID, "Collected"); err != nil { // no-op, still notifies
		t.Fatal(err)
	}
	if _, err := l.Transfer(ctx, rec.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	// Rejected mutations must not notify.
	bind(t, l, "mallory")
	if _, err := l.SetStatus(ctx, rec.ID, "Stolen"); !custody.IsUnauthorized(err) {
		t.Fatal(err)
	}

	want := []record.ChangeKind{
		record.ChangeCreated,
		record.ChangeStatusChanged,
		record.ChangeStatusChanged,
		record.ChangeOwnerChanged,
	}
	var got []record.Change
	deadline := time.Now().Add(2 * time.Second)
	for {
		got = collector.snapshot()
		if len(got) >= len(want) || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(got) != len(want) {
		t.Fatalf("received %d notifications, want %d", len(got), len(want))
	}
	for i, kind := range want {
		if got[i].Kind != kind {
			t.Errorf("notification[%d].Kind = %q, want %q", i, got[i].Kind, kind)
		}
		if got[i].RecordID != rec.ID {
			t.Errorf("notification[%d].RecordID = %d, want %d", i, got[i].RecordID, rec.ID)
		}
	}
	if got[3].From != "alice" || got[3].To != "bob" {
		t.Errorf("transfer notification from/to = %q/%q, want alice/bob", got[3].From, got[3].To)
	}
}

func TestStopDrainsPendingNotifications(t *testing.T) {
	collector := &changeCollector{}
	l := custody.New(memory.New(), custody.WithHook(collector))
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	bind(t, l, "alice")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := l.Create(ctx, "Plastic"); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}

	if got := collector.snapshot(); len(got) != 10 {
		t.Errorf("delivered %d notifications after Stop, want 10", len(got))
	}
}

// gateStore blocks CreateRecord until released, so tests can hold a
// mutation in flight at a chosen point.
type gateStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gateStore) CreateRecord(ctx context.Context, itemType string, creator types.Identity) (*record.Record, error) {
	close(g.entered)
	<-g.release
	return g.Store.CreateRecord(ctx, itemType, creator)
}

func TestMutationRacingStopStillNotified(t *testing.T) {
	gs := &gateStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	collector := &changeCollector{}
	l := custody.New(gs, custody.WithHook(collector))
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	bind(t, l, "alice")

	createDone := make(chan error, 1)
	go func() {
		_, err := l.Create(context.Background(), "Plastic")
		createDone <- err
	}()
	<-gs.entered

	// Stop while the write is in flight: it must wait for the write to
	// finish and its notification to be delivered.
	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		_ = l.Stop()
	}()

	// Let Stop reach its wait before the write completes.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-stopDone:
		t.Fatal("Stop returned while a mutation was in flight")
	default:
	}

	close(gs.release)
	if err := <-createDone; err != nil {
		t.Fatalf("Create during Stop: %v", err)
	}
	<-stopDone

	got := collector.snapshot()
	if len(got) != 1 {
		t.Fatalf("delivered %d notifications, want 1", len(got))
	}
	if got[0].Kind != record.ChangeCreated {
		t.Errorf("notification kind = %q, want %q", got[0].Kind, record.ChangeCreated)
	}
}

// journalFailStore accepts every write but rejects journal appends.
type journalFailStore struct {
	store.Store
	err error
}

func (s *journalFailStore) AppendChange(context.Context, *record.Change) error { return s.err }

// journalFailureObserver captures OnJournalFailed callbacks.
type journalFailureObserver struct {
	mu       sync.Mutex
	failures []error
	kinds    []record.ChangeKind
}

func (o *journalFailureObserver) Name() string { return "journal-failure-observer" }

func (o *journalFailureObserver) OnJournalFailed(_ context.Context, ch record.Change, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
	o.kinds = append(o.kinds, ch.Kind)
	return nil
}

func TestJournalFailureIsObservableAndNotificationStillFires(t *testing.T) {
	appendErr := errors.New("journal write rejected")
	js := &journalFailStore{Store: memory.New(), err: appendErr}
	observer := &journalFailureObserver{}
	collector := &changeCollector{}
	l := custody.New(js, custody.WithHook(observer), custody.WithHook(collector))
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Plastic")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	observer.mu.Lock()
	failures := append([]error(nil), observer.failures...)
	kinds := append([]record.ChangeKind(nil), observer.kinds...)
	observer.mu.Unlock()
	if len(failures) != 1 {
		t.Fatalf("observed %d journal failures, want 1", len(failures))
	}
	if !errors.Is(failures[0], appendErr) {
		t.Errorf("observed failure = %v, want %v", failures[0], appendErr)
	}
	if kinds[0] != record.ChangeCreated {
		t.Errorf("failed journal kind = %q, want %q", kinds[0], record.ChangeCreated)
	}

	// The mutation stands and its notification is still delivered; History
	// is the side that is missing the entry.
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := collector.snapshot(); len(got) != 1 {
		t.Errorf("delivered %d notifications, want 1", len(got))
	}
	if got, err := js.Store.ListChanges(ctx, rec.ID, record.ListOpts{}); err != nil || len(got) != 0 {
		t.Errorf("journal has %d entries (err %v), want 0", len(got), err)
	}
}

func TestMutationsBeforeStartRejected(t *testing.T) {
	l := custody.New(memory.New())
	_ = l.Session().Bind("alice")

	if _, err := l.Create(context.Background(), "Plastic"); !errors.Is(err, custody.ErrNotStarted) {
		t.Errorf("Create before Start error = %v, want ErrNotStarted", err)
	}
}

func TestMutationsAfterStopRejected(t *testing.T) {
	l := custody.New(memory.New())
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_ = l.Session().Bind("alice")
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Create(ctx, "Plastic"); !errors.Is(err, custody.ErrClosed) {
		t.Errorf("Create after Stop error = %v, want ErrClosed", err)
	}
}

func TestCount(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := l.Create(ctx, "Plastic"); err != nil {
			t.Fatal(err)
		}
	}
	n, err := l.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
}

func TestHistoryFiltersAndPages(t *testing.T) {
	l := startLedger(t)
	bind(t, l, "alice")
	ctx := context.Background()

	rec, err := l.Create(ctx, "Plastic")
	if err != nil {
		t.Fatal(err)
	}
	for _, status := range []string{"Collected", "Sorted", "Recycled"} {
		if _, err := l.SetStatus(ctx, rec.ID, status); err != nil {
			t.Fatal(err)
		}
	}

	statusOnly, err := l.History(ctx, rec.ID, record.ListOpts{Kind: record.ChangeStatusChanged})
	if err != nil {
		t.Fatal(err)
	}
	if len(statusOnly) != 3 {
		t.Fatalf("status history has %d entries, want 3", len(statusOnly))
	}
	if statusOnly[2].Status != "Recycled" {
		t.Errorf("last status change = %q, want Recycled", statusOnly[2].Status)
	}

	page, err := l.History(ctx, rec.ID, record.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Errorf("page has %d entries, want 2", len(page))
	}
}
