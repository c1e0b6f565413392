package hook

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/custody/event"
	"github.com/xraph/custody/record"
)

// Registry manages all registered hooks and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	// Type-cached hook lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onRecordCreated      []OnRecordCreated
	onStatusChanged      []OnStatusChanged
	onOwnerChanged       []OnOwnerChanged
	onChange             []OnChange
	onJournalFailed      []OnJournalFailed
	onDetectionDropped   []OnDetectionDropped
	onStreamStateChanged []OnStreamStateChanged
	onAutoWriteFailed    []OnAutoWriteFailed
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	// Type-switch to cache interfaces
	if v, ok := h.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := h.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := h.(OnRecordCreated); ok {
		r.onRecordCreated = append(r.onRecordCreated, v)
	}
	if v, ok := h.(OnStatusChanged); ok {
		r.onStatusChanged = append(r.onStatusChanged, v)
	}
	if v, ok := h.(OnOwnerChanged); ok {
		r.onOwnerChanged = append(r.onOwnerChanged, v)
	}
	if v, ok := h.(OnChange); ok {
		r.onChange = append(r.onChange, v)
	}
	if v, ok := h.(OnJournalFailed); ok {
		r.onJournalFailed = append(r.onJournalFailed, v)
	}
	if v, ok := h.(OnDetectionDropped); ok {
		r.onDetectionDropped = append(r.onDetectionDropped, v)
	}
	if v, ok := h.(OnStreamStateChanged); ok {
		r.onStreamStateChanged = append(r.onStreamStateChanged, v)
	}
	if v, ok := h.(OnAutoWriteFailed); ok {
		r.onAutoWriteFailed = append(r.onAutoWriteFailed, v)
	}

	r.logger.Info("hook registered",
		"name", h.Name(),
		"interfaces", r.getImplementedInterfaces(h),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the hook.
func (r *Registry) getImplementedInterfaces(h Hook) []string {
	var interfaces []string
	v := reflect.TypeOf(h)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnRecordCreated)(nil)).Elem(), "OnRecordCreated")
	checkInterface(reflect.TypeOf((*OnStatusChanged)(nil)).Elem(), "OnStatusChanged")
	checkInterface(reflect.TypeOf((*OnOwnerChanged)(nil)).Elem(), "OnOwnerChanged")
	checkInterface(reflect.TypeOf((*OnChange)(nil)).Elem(), "OnChange")
	checkInterface(reflect.TypeOf((*OnJournalFailed)(nil)).Elem(), "OnJournalFailed")
	checkInterface(reflect.TypeOf((*OnDetectionDropped)(nil)).Elem(), "OnDetectionDropped")
	checkInterface(reflect.TypeOf((*OnStreamStateChanged)(nil)).Elem(), "OnStreamStateChanged")
	checkInterface(reflect.TypeOf((*OnAutoWriteFailed)(nil)).Elem(), "OnAutoWriteFailed")

	return interfaces
}

// Get returns a hook by name.
func (r *Registry) Get(name string) Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// List returns all registered hooks.
func (r *Registry) List() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hook, len(r.hooks))
	copy(result, r.hooks)
	return result
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all hooks that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("hook OnInit failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all hooks that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("hook OnShutdown failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitChange dispatches one accepted mutation to the kind-specific hooks
// and then to the catch-all OnChange feed. One call per mutation, in
// acceptance order; the caller (the ledger's dispatcher) guarantees the
// ordering.
func (r *Registry) EmitChange(ctx context.Context, ch record.Change) {
	r.mu.RLock()
	var kindHooks []func() (string, func() error)
	switch ch.Kind {
	case record.ChangeCreated:
		for _, h := range r.onRecordCreated {
			h := h
			kindHooks = append(kindHooks, func() (string, func() error) {
				return h.Name(), func() error { return h.OnRecordCreated(ctx, ch) }
			})
		}
	case record.ChangeStatusChanged:
		for _, h := range r.onStatusChanged {
			h := h
			kindHooks = append(kindHooks, func() (string, func() error) {
				return h.Name(), func() error { return h.OnStatusChanged(ctx, ch) }
			})
		}
	case record.ChangeOwnerChanged:
		for _, h := range r.onOwnerChanged {
			h := h
			kindHooks = append(kindHooks, func() (string, func() error) {
				return h.Name(), func() error { return h.OnOwnerChanged(ctx, ch) }
			})
		}
	}
	catchAll := r.onChange
	r.mu.RUnlock()

	for _, entry := range kindHooks {
		name, call := entry()
		if err := r.callWithTimeout(ctx, name, call); err != nil {
			r.logger.Warn("hook change dispatch failed",
				"hook", name,
				"kind", string(ch.Kind),
				"record_id", ch.RecordID,
				"error", err,
			)
		}
	}

	for _, h := range catchAll {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnChange(ctx, ch)
		}); err != nil {
			r.logger.Warn("hook OnChange failed",
				"hook", h.Name(),
				"kind", string(ch.Kind),
				"record_id", ch.RecordID,
				"error", err,
			)
		}
	}
}

// EmitJournalFailed emits a failed journal append for an accepted mutation.
func (r *Registry) EmitJournalFailed(ctx context.Context, ch record.Change, failure error) {
	r.mu.RLock()
	hooks := r.onJournalFailed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnJournalFailed(ctx, ch, failure)
		}); err != nil {
			r.logger.Warn("hook OnJournalFailed failed",
				"hook", h.Name(),
				"record_id", ch.RecordID,
				"error", err,
			)
		}
	}
}

// EmitDetectionDropped emits a detection dropped event.
func (r *Registry) EmitDetectionDropped(ctx context.Context, ev event.Detection, total uint64) {
	r.mu.RLock()
	hooks := r.onDetectionDropped
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnDetectionDropped(ctx, ev, total)
		}); err != nil {
			r.logger.Warn("hook OnDetectionDropped failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitStreamStateChanged emits an ingestion channel transition.
func (r *Registry) EmitStreamStateChanged(ctx context.Context, from, to string) {
	r.mu.RLock()
	hooks := r.onStreamStateChanged
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnStreamStateChanged(ctx, from, to)
		}); err != nil {
			r.logger.Warn("hook OnStreamStateChanged failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitAutoWriteFailed emits a failed auto-write.
func (r *Registry) EmitAutoWriteFailed(ctx context.Context, ev event.Detection, failure error) {
	r.mu.RLock()
	hooks := r.onAutoWriteFailed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnAutoWriteFailed(ctx, ev, failure)
		}); err != nil {
			r.logger.Warn("hook OnAutoWriteFailed failed",
				"hook", h.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a hook function with a timeout.
// Hooks should never block the write pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
