package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the custody store.
var Migrations = migrate.NewGroup("custody")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custody_records",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_records (
    id         BIGSERIAL PRIMARY KEY,
    item_type  TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'Generated',
    owner      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_custody_records_owner ON custody_records (owner);
CREATE INDEX IF NOT EXISTS idx_custody_records_item_type ON custody_records (item_type);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_changes",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_changes (
    id            TEXT PRIMARY KEY,
    record_id     BIGINT NOT NULL,
    kind          TEXT NOT NULL DEFAULT '',
    actor         TEXT NOT NULL DEFAULT '',
    item_type     TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT '',
    from_identity TEXT NOT NULL DEFAULT '',
    to_identity   TEXT NOT NULL DEFAULT '',
    at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_custody_changes_record ON custody_changes (record_id, at);
CREATE INDEX IF NOT EXISTS idx_custody_changes_kind ON custody_changes (record_id, kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_changes`)
				return err
			},
		},
	)
}
