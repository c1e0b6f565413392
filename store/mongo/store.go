package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/record"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
)

// Collection name constants.
const (
	colRecords  = "custody_records"
	colChanges  = "custody_changes"
	colCounters = "custody_counters"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all custody collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("custody/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Record Store ====================

// nextRecordID reserves the next record id from the counters collection.
// $inc on a single document is atomic, and the counter is never decremented,
// so ids stay strictly increasing across concurrent writers.
func (s *Store) nextRecordID(ctx context.Context) (uint64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "record_id"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("custody/mongo: allocate record id: %w", err)
	}
	return uint64(doc.Seq), nil
}

func (s *Store) CreateRecord(ctx context.Context, itemType string, creator types.Identity) (*record.Record, error) {
	recID, err := s.nextRecordID(ctx)
	if err != nil {
		return nil, err
	}

	t := now()
	m := &recordModel{
		ID:        recID,
		ItemType:  itemType,
		Status:    record.StatusGenerated,
		Owner:     creator.String(),
		CreatedAt: t,
		UpdatedAt: t,
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: create record: %w", err)
	}
	return fromRecordModel(m), nil
}

func (s *Store) GetRecord(ctx context.Context, recID record.ID) (*record.Record, error) {
	var m recordModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": uint64(recID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrRecordNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get record: %w", err)
	}
	return fromRecordModel(&m), nil
}

// SetStatus updates the status iff the caller is the current owner. The
// ownership check rides in the update filter so the gate and the write hit
// the same document version.
func (s *Store) SetStatus(ctx context.Context, recID record.ID, status string, caller types.Identity) (*record.Record, error) {
	res, err := s.mdb.NewUpdate((*recordModel)(nil)).
		Filter(bson.M{"_id": uint64(recID), "owner": caller.String()}).
		Set("status", status).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/mongo: set status: %w", err)
	}
	if err := s.classifyZeroMatched(ctx, res.MatchedCount(), recID); err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, recID)
}

// SetOwner transfers custody iff the caller is the current owner.
func (s *Store) SetOwner(ctx context.Context, recID record.ID, newOwner, caller types.Identity) (*record.Record, error) {
	res, err := s.mdb.NewUpdate((*recordModel)(nil)).
		Filter(bson.M{"_id": uint64(recID), "owner": caller.String()}).
		Set("owner", newOwner.String()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/mongo: set owner: %w", err)
	}
	if err := s.classifyZeroMatched(ctx, res.MatchedCount(), recID); err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, recID)
}

func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	n, err := s.mdb.Collection(colRecords).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("custody/mongo: count records: %w", err)
	}
	return n, nil
}

// classifyZeroMatched distinguishes "no such record" from "caller is not
// the owner" after an owner-gated update matched zero documents.
func (s *Store) classifyZeroMatched(ctx context.Context, matched int64, recID record.ID) error {
	if matched > 0 {
		return nil
	}
	if _, err := s.GetRecord(ctx, recID); err != nil {
		return err
	}
	return custody.ErrUnauthorized
}

// ==================== Change journal ====================

func (s *Store) AppendChange(ctx context.Context, ch *record.Change) error {
	m := toChangeModel(ch)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("custody/mongo: append change: %w", err)
	}
	return nil
}

func (s *Store) ListChanges(ctx context.Context, recID record.ID, opts record.ListOpts) ([]*record.Change, error) {
	filter := bson.M{"record_id": uint64(recID)}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	var models []changeModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list changes: %w", err)
	}

	result := make([]*record.Change, len(models))
	for i := range models {
		ch, err := fromChangeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ch
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all custody collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colRecords: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "item_type", Value: 1}}},
		},
		colChanges: {
			{Keys: bson.D{{Key: "record_id", Value: 1}, {Key: "at", Value: 1}}},
			{Keys: bson.D{{Key: "record_id", Value: 1}, {Key: "kind", Value: 1}}},
		},
		colCounters: {},
	}
}
