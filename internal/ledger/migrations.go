package ledger

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all eventlist tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS processing_info (
		night      INTEGER NOT NULL,
		run_id     INTEGER NOT NULL,
		extension  TEXT    NOT NULL DEFAULT '',
		status     INTEGER NOT NULL DEFAULT 0,
		created_at TEXT    NOT NULL,
		updated_at TEXT    NOT NULL,
		PRIMARY KEY (night, run_id)
	)`,

	// One row per (run, filesystem). The set of filesystems comes from
	// configuration, so a new storage backend needs no schema change.
	`CREATE TABLE IF NOT EXISTS file_availability (
		night      INTEGER NOT NULL,
		run_id     INTEGER NOT NULL,
		filesystem TEXT    NOT NULL,
		available  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (night, run_id, filesystem),
		FOREIGN KEY (night, run_id) REFERENCES processing_info(night, run_id)
	)`,

	// The uniqueness of (night, run_id, event_nr) is load-bearing: a
	// retried insertion after a partial failure must fail loudly
	// rather than silently duplicate events.
	`CREATE TABLE IF NOT EXISTS event_list (
		night      INTEGER NOT NULL,
		run_id     INTEGER NOT NULL,
		event_nr   INTEGER NOT NULL,
		utc        INTEGER NOT NULL,
		utc_us     INTEGER NOT NULL,
		event_type INTEGER NOT NULL,
		run_type   INTEGER NOT NULL,
		PRIMARY KEY (night, run_id, event_nr)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_processing_info_status ON processing_info(status)`,
	`CREATE INDEX IF NOT EXISTS idx_file_availability_fs ON file_availability(filesystem, available)`,
	// Noise-database style consumers select pedestal and GPS triggers.
	`CREATE INDEX IF NOT EXISTS idx_event_list_event_type ON event_list(event_type)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
