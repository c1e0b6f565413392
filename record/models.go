// Package record defines the tracked unit of custody and its change journal.
package record

import (
	"strconv"
	"time"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// ID is the ledger-assigned identifier of a record. Ids are positive,
// strictly increasing and never reused; 0 is the "not found" sentinel.
type ID uint64

// NilID is the "no such record" sentinel. A record with id 0 never exists.
const NilID ID = 0

// IsNil reports whether the id is the not-found sentinel.
func (i ID) IsNil() bool { return i == NilID }

// String implements fmt.Stringer.
func (i ID) String() string { return strconv.FormatUint(uint64(i), 10) }

// StatusGenerated is the fixed initial status of every record.
//
// Status values are otherwise free-form labels; the ledger enforces no
// transition graph and no terminal state ("Disposed" is just another
// string).
const StatusGenerated = "Generated"

// Record is the on-ledger state of a tracked physical item.
//
// ItemType and CreatedAt are fixed at creation. Status and Owner change
// only through the ledger's mutation operations, each of which is gated
// on the *current* owner.
type Record struct {
	types.Entity
	ID       ID             `json:"id"`
	ItemType string         `json:"item_type"`
	Status   string         `json:"status"`
	Owner    types.Identity `json:"owner"`
}

// Authorized is the pure ownership predicate evaluated before every
// mutation: only the record's current owner may mutate it. An anonymous
// caller is never authorized.
func Authorized(caller types.Identity, r *Record) bool {
	if r == nil || caller.IsZero() {
		return false
	}
	return caller == r.Owner
}

// ChangeKind tags an entry in the change journal.
type ChangeKind string

// Change kinds, one per mutating ledger operation.
const (
	ChangeCreated       ChangeKind = "created"
	ChangeStatusChanged ChangeKind = "status_changed"
	ChangeOwnerChanged  ChangeKind = "owner_changed"
)

// Change is one accepted mutation, as appended to the journal and as
// delivered to change-notification hooks. The journal is append-only:
// re-submitting an identical status or owner is an accepted write and
// produces its own entry (audit of intent, not of effect).
type Change struct {
	ID       id.ChangeID    `json:"id"`
	RecordID ID             `json:"record_id"`
	Kind     ChangeKind     `json:"kind"`
	Actor    types.Identity `json:"actor"`

	// Payload fields; which are set depends on Kind.
	ItemType string         `json:"item_type,omitempty"` // created
	Status   string         `json:"status,omitempty"`    // created, status_changed
	From     types.Identity `json:"from,omitempty"`      // owner_changed
	To       types.Identity `json:"to,omitempty"`        // owner_changed

	At time.Time `json:"at"`
}

// ListOpts controls journal queries.
type ListOpts struct {
	Kind   ChangeKind // filter by kind when non-empty
	Limit  int        // 0 means no limit
	Offset int
}
