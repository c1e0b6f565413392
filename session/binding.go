// Package session tracks the identity bound to a client session.
//
// At most one principal is bound at a time. The binding is fed by an
// external identity source (a connected wallet, an account list) that is
// treated as untrusted input: every ledger write re-resolves the current
// identity instead of caching it.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Sentinel errors returned by Current.
var (
	// ErrNoIdentity means the session is disconnected: no principal is
	// available to attribute a write to.
	ErrNoIdentity = errors.New("custody/session: no identity bound")

	// ErrNotReady means the binding is being torn down and rebuilt after
	// an environment switch. Transient: retry after the rebind completes.
	ErrNotReady = errors.New("custody/session: binding mid-reset")
)

// State is the binding's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateResetting    State = "resetting"
)

// ChangeFunc observes binding transitions. old and new are the
// identities before and after; either may be the zero Identity.
type ChangeFunc func(old, new types.Identity)

// Binding holds the current identity for one client session.
//
// Transitions are atomic: a write that resolved its caller before a
// switch completes under the old identity (or fails on its own terms),
// never silently re-attributed to the new one. The generation counter
// lets callers detect that the binding changed underneath them.
type Binding struct {
	mu         sync.RWMutex
	state      State
	identity   types.Identity
	generation uint64

	sessionID id.SessionID
	logger    *slog.Logger
	onChange  []ChangeFunc
}

// Option configures a Binding.
type Option func(*Binding)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) { b.logger = logger }
}

// WithOnChange registers an observer invoked after every transition.
func WithOnChange(fn ChangeFunc) Option {
	return func(b *Binding) { b.onChange = append(b.onChange, fn) }
}

// New creates a disconnected Binding.
func New(opts ...Option) *Binding {
	b := &Binding{
		state:     StateDisconnected,
		sessionID: id.NewSessionID(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the session identifier.
func (b *Binding) ID() id.SessionID { return b.sessionID }

// Current returns the bound identity. It fails with ErrNotReady while an
// environment reset is in progress and ErrNoIdentity when disconnected.
func (b *Binding) Current() (types.Identity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch b.state {
	case StateResetting:
		return types.Anonymous, ErrNotReady
	case StateDisconnected:
		return types.Anonymous, ErrNoIdentity
	default:
		return b.identity, nil
	}
}

// State returns the current lifecycle state.
func (b *Binding) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Generation returns the transition counter. It increments on every
// connect, switch, disconnect and reset.
func (b *Binding) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// Bind connects the session to identity, or switches to it if already
// connected. Covers both the explicit connect action and the silent
// restore of a prior authorization.
func (b *Binding) Bind(identity types.Identity) error {
	if identity.IsZero() {
		return ErrNoIdentity
	}

	old := b.transition(StateConnected, identity)

	b.logger.Info("session identity bound",
		"session", b.sessionID.String(),
		"identity", identity.Short(),
		"previous", old.Short(),
	)
	return nil
}

// Disconnect clears the bound identity. Invoked when the identity source
// reports zero available identities.
func (b *Binding) Disconnect() {
	old := b.transition(StateDisconnected, types.Anonymous)

	b.logger.Info("session identity unbound",
		"session", b.sessionID.String(),
		"previous", old.Short(),
	)
}

// BeginReset enters the reset window for a full environment switch
// (chain change). Until CompleteReset, Current fails with ErrNotReady so
// no write can target the stale binding.
func (b *Binding) BeginReset() {
	b.transition(StateResetting, types.Anonymous)

	b.logger.Info("session binding reset started", "session", b.sessionID.String())
}

// CompleteReset leaves the reset window. The session is disconnected
// afterwards; the identity source must Bind again before writes resume.
func (b *Binding) CompleteReset() {
	b.transition(StateDisconnected, types.Anonymous)

	b.logger.Info("session binding reset complete", "session", b.sessionID.String())
}

// transition applies the state change under lock and notifies observers
// outside it. Returns the previously bound identity.
func (b *Binding) transition(state State, identity types.Identity) types.Identity {
	b.mu.Lock()
	old := b.identity
	b.state = state
	b.identity = identity
	b.generation++
	observers := b.onChange
	b.mu.Unlock()

	for _, fn := range observers {
		fn(old, identity)
	}
	return old
}
