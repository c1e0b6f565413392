package mongo

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

	ID        uint64    `grove:"id,pk"      bson:"_id"`
	ItemType  string    `grove:"item_type"  bson:"item_type"`
	Status    string    `grove:"status"     bson:"status"`
	Owner     string    `grove:"owner"      bson:"owner"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
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

	ID       string    `grove:"id,pk"         bson:"_id"`
	RecordID uint64    `grove:"record_id"     bson:"record_id"`
	Kind     string    `grove:"kind"          bson:"kind"`
	Actor    string    `grove:"actor"         bson:"actor"`
	ItemType string    `grove:"item_type"     bson:"item_type"`
	Status   string    `grove:"status"        bson:"status"`
	FromID   string    `grove:"from_identity" bson:"from_identity"`
	ToID     string    `grove:"to_identity"   bson:"to_identity"`
	At       time.Time `grove:"at"            bson:"at"`
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
