package store

import (
	"context"

	"github.com/xraph/custody/record"
	"github.com/xraph/custody/types"
)

// Store is the storage interface backing a custody Ledger. Mutations are
// owner-gated at the store level so the authorization check and the write
// happen against the same row state; each mutator returns the record as it
// stands after the write.
type Store interface {
	// Record methods
	CreateRecord(ctx context.Context, itemType string, creator types.Identity) (*record.Record, error)
	GetRecord(ctx context.Context, recID record.ID) (*record.Record, error)
	SetStatus(ctx context.Context, recID record.ID, status string, caller types.Identity) (*record.Record, error)
	SetOwner(ctx context.Context, recID record.ID, newOwner, caller types.Identity) (*record.Record, error)
	CountRecords(ctx context.Context) (int64, error)

	// Change journal methods
	AppendChange(ctx context.Context, ch *record.Change) error
	ListChanges(ctx context.Context, recID record.ID, opts record.ListOpts) ([]*record.Change, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
