package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/record"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("custody/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custody/postgres: migration failed: %w", err)
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

// CreateRecord inserts a new record; BIGSERIAL allocates the next id.
// Postgres sequences never re-issue a value, so ids stay strictly
// increasing even when a transaction rolls back.
func (s *Store) CreateRecord(ctx context.Context, itemType string, creator types.Identity) (*record.Record, error) {
	t := now()
	var recID uint64
	err := s.pg.NewRaw(`
		INSERT INTO custody_records (item_type, status, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, itemType, record.StatusGenerated, creator.String(), t, t).Scan(ctx, &recID)
	if err != nil {
		return nil, err
	}
	return &record.Record{
		Entity:   types.Entity{CreatedAt: t, UpdatedAt: t},
		ID:       record.ID(recID),
		ItemType: itemType,
		Status:   record.StatusGenerated,
		Owner:    creator,
	}, nil
}

func (s *Store) GetRecord(ctx context.Context, recID record.ID) (*record.Record, error) {
	m := new(recordModel)
	err := s.pg.NewSelect(m).
		Where("id = ?", uint64(recID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrRecordNotFound
		}
		return nil, err
	}
	return fromRecordModel(m), nil
}

// SetStatus updates the status iff the caller is the current owner. The
// ownership check rides inside the UPDATE's WHERE clause so the gate and
// the write hit the same row version.
func (s *Store) SetStatus(ctx context.Context, recID record.ID, status string, caller types.Identity) (*record.Record, error) {
	res, err := s.pg.NewUpdate((*recordModel)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now()).
		Where("id = ?", uint64(recID)).
		Where("owner = ?", caller.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.classifyZeroRows(ctx, res, recID); err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, recID)
}

// SetOwner transfers custody iff the caller is the current owner.
func (s *Store) SetOwner(ctx context.Context, recID record.ID, newOwner, caller types.Identity) (*record.Record, error) {
	res, err := s.pg.NewUpdate((*recordModel)(nil)).
		Set("owner = ?", newOwner.String()).
		Set("updated_at = ?", now()).
		Where("id = ?", uint64(recID)).
		Where("owner = ?", caller.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.classifyZeroRows(ctx, res, recID); err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, recID)
}

func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM custody_records`).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// classifyZeroRows distinguishes "no such record" from "caller is not the
// owner" after an owner-gated UPDATE touched zero rows.
func (s *Store) classifyZeroRows(ctx context.Context, res sql.Result, recID record.ID) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListChanges(ctx context.Context, recID record.ID, opts record.ListOpts) ([]*record.Change, error) {
	var models []changeModel
	q := s.pg.NewSelect(&models).Where("record_id = ?", uint64(recID))

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
