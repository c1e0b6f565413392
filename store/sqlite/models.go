package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/record"
	"github.com/xraph/custody/types"
)

// ==================== Record models ====================

type recordModel struct {
	grove.BaseModel `grove:"table:custody_records"`

	ID        uint64    `grove:"id,pk"`
	ItemType  string    `grove:"item_type"`
	Status    string    `grove:"status"`
	Owner     string    `grove:"owner"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func fromRecordModel(m *recordModel) *record.Record {
	return &record.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       record.ID(m.ID),
		ItemType: m.ItemType,
		Status:   m.Status,
		Owner:    types.Identity(m.Owner),
	}
}

// ==================== Change models ====================

type changeModel struct {
	grove.BaseModel `grove:"table:custody_changes"`

	ID       string    `grove:"id,pk"`
	RecordID uint64    `grove:"record_id"`
	Kind     string    `grove:"kind"`
	Actor    string    `grove:"actor"`
	ItemType string    `grove:"item_type"`
	Status   string    `grove:"status"`
	FromID   string    `grove:"from_identity"`
	ToID     string    `grove:"to_identity"`
	At       time.Time `grove:"at"`
}

func toChangeModel(ch *record.Change) *changeModel {
	return &changeModel{
		ID:       ch.ID.String(),
		RecordID: uint64(ch.RecordID),
		Kind:     string(ch.Kind),
		Actor:    ch.Actor.String(),
		ItemType: ch.ItemType,
		Status:   ch.Status,
		FromID:   ch.From.String(),
		ToID:     ch.To.String(),
		At:       ch.At,
	}
}

func fromChangeModel(m *changeModel) (*record.Change, error) {
	chID, err := id.ParseChangeID(m.ID)
	if err != nil {
		return nil, err
	}
	return &record.Change{
		ID:       chID,
		RecordID: record.ID(m.RecordID),
		Kind:     record.ChangeKind(m.Kind),
		Actor:    types.Identity(m.Actor),
		ItemType: m.ItemType,
		Status:   m.Status,
		From:     types.Identity(m.FromID),
		To:       types.Identity(m.ToID),
		At:       m.At,
	}, nil
}
