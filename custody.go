package custody

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/custody/hook"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/record"
	"github.com/xraph/custody/session"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
)

// Ledger is the custody engine: an append-only, ownership-gated record
// store with ordered change notifications.
type Ledger struct {
	store   store.Store
	hooks   *hook.Registry
	binding *session.Binding
	logger  *slog.Logger

	// Notification dispatch
	notifyCh chan record.Change
	stopChan chan struct{}
	wg       sync.WaitGroup
	inflight sync.WaitGroup

	// Configuration
	notifyBuffer int
	skipMigrate  bool

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        s,
		hooks:        hook.NewRegistry(),
		logger:       slog.Default(),
		stopChan:     make(chan struct{}),
		notifyBuffer: 1024,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.binding == nil {
		l.binding = session.New(session.WithLogger(l.logger))
	}
	l.hooks.WithLogger(l.logger)
	l.notifyCh = make(chan record.Change, l.notifyBuffer)

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithHook registers a hook.
func WithHook(h hook.Hook) Option {
	return func(l *Ledger) {
		_ = l.hooks.Register(h) //nolint:errcheck // best-effort hook registration during init
	}
}

// WithSession injects a shared session binding, e.g. one also observed by
// an ingestion bridge.
func WithSession(b *session.Binding) Option {
	return func(l *Ledger) {
		if b != nil {
			l.binding = b
		}
	}
}

// WithNotifyBuffer sets the change-notification buffer capacity.
func WithNotifyBuffer(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.notifyBuffer = n
		}
	}
}

// WithoutMigrate skips store migration during Start, for applications that
// run migrations out of band.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Session returns the identity binding mutating calls resolve against.
func (l *Ledger) Session() *session.Binding { return l.binding }

// Hooks returns the hook registry.
func (l *Ledger) Hooks() *hook.Registry { return l.hooks }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Start migrates the store, initializes hooks and begins the notification
// dispatcher.
func (l *Ledger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("custody: ledger already started")
	}
	l.started = true
	l.mu.Unlock()

	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return &EnvironmentError{Op: "migrate", Err: err}
		}
	}

	l.hooks.EmitInit(ctx, l)

	l.wg.Add(1)
	go l.notifyDispatcher()

	l.logger.Info("custody ledger started",
		"notify_buffer", l.notifyBuffer,
		"hooks", l.hooks.Count(),
	)
	return nil
}

// Stop shuts the Ledger down. Mutations already past the lifecycle check
// are allowed to finish and queue their notifications, and the queue is
// drained before the dispatcher exits, so every accepted mutation still
// gets its exactly-one delivery.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	// New mutations are rejected with ErrClosed from here on; wait for the
	// in-flight ones to queue their notifications before draining.
	l.inflight.Wait()

	close(l.stopChan)
	l.wg.Wait()

	ctx := context.Background()
	l.hooks.EmitShutdown(ctx)

	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Record operations
// ──────────────────────────────────────────────────

// Create allocates the next record id and stores a new record owned by the
// currently bound identity.
func (l *Ledger) Create(ctx context.Context, itemType string) (*record.Record, error) {
	ident, err := l.ready()
	if err != nil {
		return nil, err
	}
	defer l.done()

	rec, err := l.store.CreateRecord(ctx, itemType, ident)
	if err != nil {
		return nil, l.wrapStoreErr("create", err)
	}

	l.accept(ctx, record.Change{
		ID:       id.NewChangeID(),
		RecordID: rec.ID,
		Kind:     record.ChangeCreated,
		Actor:    ident,
		ItemType: rec.ItemType,
		Status:   rec.Status,
		At:       rec.CreatedAt,
	})
	return rec, nil
}

// Get fetches a record by id. Id 0 never exists.
func (l *Ledger) Get(ctx context.Context, recID record.ID) (*record.Record, error) {
	rec, err := l.store.GetRecord(ctx, recID)
	if err != nil {
		return nil, l.wrapStoreErr("get", err)
	}
	return rec, nil
}

// SetStatus overwrites the record's status. Only the current owner may
// call it; re-submitting the current status is an accepted write and
// produces its own notification.
func (l *Ledger) SetStatus(ctx context.Context, recID record.ID, status string) (*record.Record, error) {
	ident, err := l.ready()
	if err != nil {
		return nil, err
	}
	defer l.done()

	rec, err := l.store.SetStatus(ctx, recID, status, ident)
	if err != nil {
		return nil, l.wrapStoreErr("set_status", err)
	}

	l.accept(ctx, record.Change{
		ID:       id.NewChangeID(),
		RecordID: rec.ID,
		Kind:     record.ChangeStatusChanged,
		Actor:    ident,
		Status:   status,
		At:       rec.UpdatedAt,
	})
	return rec, nil
}

// Transfer hands custody of the record to newOwner. Only the current owner
// may call it; from the accepted write on, authorization is evaluated
// against newOwner. Transferring to the current owner is accepted too.
func (l *Ledger) Transfer(ctx context.Context, recID record.ID, newOwner types.Identity) (*record.Record, error) {
	ident, err := l.ready()
	if err != nil {
		return nil, err
	}
	defer l.done()

	rec, err := l.store.SetOwner(ctx, recID, newOwner, ident)
	if err != nil {
		return nil, l.wrapStoreErr("transfer", err)
	}

	l.accept(ctx, record.Change{
		ID:       id.NewChangeID(),
		RecordID: rec.ID,
		Kind:     record.ChangeOwnerChanged,
		Actor:    ident,
		From:     ident,
		To:       newOwner,
		At:       rec.UpdatedAt,
	})
	return rec, nil
}

// History lists the record's journal entries in acceptance order.
func (l *Ledger) History(ctx context.Context, recID record.ID, opts record.ListOpts) ([]*record.Change, error) {
	changes, err := l.store.ListChanges(ctx, recID, opts)
	if err != nil {
		return nil, l.wrapStoreErr("history", err)
	}
	return changes, nil
}

// Count returns the number of records on the ledger.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	n, err := l.store.CountRecords(ctx)
	if err != nil {
		return 0, l.wrapStoreErr("count", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

// ready resolves the bound identity and checks engine lifecycle. Every
// mutating operation goes through it before touching the store. On
// success the caller is registered as in-flight and must release with
// done() when its write and notification are queued; Stop waits on the
// in-flight set before draining the dispatcher.
func (l *Ledger) ready() (types.Identity, error) {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return types.Anonymous, ErrNotStarted
	}
	if l.stopped {
		l.mu.Unlock()
		return types.Anonymous, ErrClosed
	}
	l.inflight.Add(1)
	l.mu.Unlock()

	ident, err := l.binding.Current()
	if err != nil {
		l.inflight.Done()
		return types.Anonymous, err
	}
	return ident, nil
}

// done releases the in-flight registration taken by ready.
func (l *Ledger) done() { l.inflight.Done() }

// accept journals an accepted mutation and queues its notification. The
// journal write is best-effort: a journal failure never rolls back the
// already-accepted mutation, but it is logged and emitted through
// OnJournalFailed so subscribers can reconcile the feed against History.
func (l *Ledger) accept(ctx context.Context, ch record.Change) {
	if ch.At.IsZero() {
		ch.At = time.Now().UTC()
	}

	if err := l.store.AppendChange(ctx, &ch); err != nil {
		l.logger.Error("change journal append failed",
			"record_id", ch.RecordID,
			"kind", ch.Kind,
			"error", err,
		)
		l.hooks.EmitJournalFailed(ctx, ch, err)
	}

	// The caller holds an in-flight registration, so Stop cannot close the
	// dispatcher before this send lands.
	l.notifyCh <- ch
}

// notifyDispatcher delivers change notifications to hooks, one at a time
// and in acceptance order. A single goroutine is the ordering guarantee.
func (l *Ledger) notifyDispatcher() {
	defer l.wg.Done()

	ctx := context.Background()
	for {
		select {
		case ch := <-l.notifyCh:
			l.hooks.EmitChange(ctx, ch)

		case <-l.stopChan:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ch := <-l.notifyCh:
					l.hooks.EmitChange(ctx, ch)
				default:
					return
				}
			}
		}
	}
}

// wrapStoreErr passes the ledger's own sentinels through verbatim and
// wraps everything else as an environment failure.
func (l *Ledger) wrapStoreErr(op string, err error) error {
	if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrUnauthorized) {
		return err
	}
	return &EnvironmentError{Op: op, Err: err}
}
