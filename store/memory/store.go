package memory

import (
	"context"
	"sync"

	"github.com/xraph/custody"
	"github.com/xraph/custody/record"
	"github.com/xraph/custody/types"
)

// Store is an in-memory Store implementation for tests and prototyping.
// Record ids are assigned from a monotonic counter starting at 1, so id 0
// stays free as the not-found sentinel.
type Store struct {
	mu sync.RWMutex

	// Record storage
	records map[record.ID]*record.Record
	nextID  record.ID

	// Change journal
	changes []*record.Change
}

func New() *Store {
	return &Store{
		records: make(map[record.ID]*record.Record),
		nextID:  1,
		changes: make([]*record.Change, 0),
	}
}

// Record Store implementation
func (s *Store) CreateRecord(_ context.Context, itemType string, creator types.Identity) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &record.Record{
		Entity:   types.NewEntity(),
		ID:       s.nextID,
		ItemType: itemType,
		Status:   record.StatusGenerated,
		Owner:    creator,
	}
	s.nextID++
	s.records[r.ID] = r

	out := *r
	return &out, nil
}

func (s *Store) GetRecord(_ context.Context, recID record.ID) (*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[recID]
	if !ok {
		return nil, custody.ErrRecordNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) SetStatus(_ context.Context, recID record.ID, status string, caller types.Identity) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recID]
	if !ok {
		return nil, custody.ErrRecordNotFound
	}
	if !record.Authorized(caller, r) {
		return nil, custody.ErrUnauthorized
	}
	r.Status = status
	r.Touch()

	out := *r
	return &out, nil
}

func (s *Store) SetOwner(_ context.Context, recID record.ID, newOwner, caller types.Identity) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recID]
	if !ok {
		return nil, custody.ErrRecordNotFound
	}
	if !record.Authorized(caller, r) {
		return nil, custody.ErrUnauthorized
	}
	r.Owner = newOwner
	r.Touch()

	out := *r
	return &out, nil
}

func (s *Store) CountRecords(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.records)), nil
}

// Change journal implementation
func (s *Store) AppendChange(_ context.Context, ch *record.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ch
	s.changes = append(s.changes, &cp)
	return nil
}

func (s *Store) ListChanges(_ context.Context, recID record.ID, opts record.ListOpts) ([]*record.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*record.Change, 0)
	for _, ch := range s.changes {
		if ch.RecordID != recID {
			continue
		}
		if opts.Kind != "" && ch.Kind != opts.Kind {
			continue
		}
		cp := *ch
		result = append(result, &cp)
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
