package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fact-project/eventlist/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) a SQLite database at dbPath and returns a
// Store. Use ":memory:" for an in-memory database (useful in tests).
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "ledger"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// InsertRecords inserts newly discovered runs and their availability
// rows in one transaction. Nothing is written if any insert fails.
func (s *SQLiteStore) InsertRecords(ctx context.Context, records []*model.ProcessingRecord) error {
	s.logger.Debug("sql", "op", "insert_batch", "table", "processing_info", "count", len(records))
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processing_info (night, run_id, extension, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Night, rec.RunID, rec.Extension, int(rec.Status), ts, ts,
		); err != nil {
			return fmt.Errorf("insert run %s: %w", rec.RunKey, err)
		}
		for fs, avail := range rec.Available {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO file_availability (night, run_id, filesystem, available)
				 VALUES (?, ?, ?, ?)`,
				rec.Night, rec.RunID, fs, boolToInt(avail),
			); err != nil {
				return fmt.Errorf("insert availability %s/%s: %w", rec.RunKey, fs, err)
			}
		}
	}

	return tx.Commit()
}

// GetRecord returns the record for the run, or nil if the ledger has
// never seen it.
func (s *SQLiteStore) GetRecord(ctx context.Context, key model.RunKey) (*model.ProcessingRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "processing_info", "run", key.String())

	rec, err := getRecordTx(ctx, s.db, key)
	if err != nil || rec == nil {
		return rec, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT filesystem, available FROM file_availability WHERE night = ? AND run_id = ?`,
		key.Night, key.RunID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var fs string
		var avail int
		if err := rows.Scan(&fs, &avail); err != nil {
			return nil, err
		}
		rec.Available[fs] = avail != 0
	}
	return rec, rows.Err()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecordTx(ctx context.Context, q querier, key model.RunKey) (*model.ProcessingRecord, error) {
	var ext string
	var status int
	err := q.QueryRowContext(ctx,
		`SELECT extension, status FROM processing_info WHERE night = ? AND run_id = ?`,
		key.Night, key.RunID,
	).Scan(&ext, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", key, err)
	}
	return &model.ProcessingRecord{
		RunKey:    key,
		Extension: ext,
		Status:    st,
		Available: make(map[string]bool),
	}, nil
}

// ListKeys returns the set of runs the ledger has seen.
func (s *SQLiteStore) ListKeys(ctx context.Context) (map[model.RunKey]struct{}, error) {
	s.logger.Debug("sql", "op", "list_keys", "table", "processing_info")

	rows, err := s.db.QueryContext(ctx, `SELECT night, run_id FROM processing_info`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[model.RunKey]struct{})
	for rows.Next() {
		var k model.RunKey
		if err := rows.Scan(&k.Night, &k.RunID); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// ListRecords returns records matching the filter, ordered by
// (night, runId).
func (s *SQLiteStore) ListRecords(ctx context.Context, f Filter) ([]*model.ProcessingRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "processing_info")

	query := `SELECT night, run_id, extension, status FROM processing_info WHERE 1=1`
	var args []any
	if f.Status != nil {
		query += ` AND status = ?`
		args = append(args, int(*f.Status))
	}
	if f.Night != 0 {
		query += ` AND night = ?`
		args = append(args, f.Night)
	}
	if f.Filesystem != "" {
		query += ` AND EXISTS (
			SELECT 1 FROM file_availability a
			WHERE a.night = processing_info.night AND a.run_id = processing_info.run_id
			  AND a.filesystem = ? AND a.available = 1)`
		args = append(args, f.Filesystem)
	}
	query += ` ORDER BY night, run_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.ProcessingRecord
	byKey := make(map[model.RunKey]*model.ProcessingRecord)
	for rows.Next() {
		var rec model.ProcessingRecord
		var status int
		if err := rows.Scan(&rec.Night, &rec.RunID, &rec.Extension, &status); err != nil {
			return nil, err
		}
		st, err := model.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", rec.RunKey, err)
		}
		rec.Status = st
		rec.Available = make(map[string]bool)
		records = append(records, &rec)
		byKey[rec.RunKey] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.fillAvailability(ctx, byKey); err != nil {
		return nil, err
	}
	return records, nil
}

// fillAvailability merges availability rows into the given records.
func (s *SQLiteStore) fillAvailability(ctx context.Context, byKey map[model.RunKey]*model.ProcessingRecord) error {
	if len(byKey) == 0 {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT night, run_id, filesystem, available FROM file_availability`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k model.RunKey
		var fs string
		var avail int
		if err := rows.Scan(&k.Night, &k.RunID, &fs, &avail); err != nil {
			return err
		}
		if rec, ok := byKey[k]; ok {
			rec.Available[fs] = avail != 0
		}
	}
	return rows.Err()
}

// SelectProcessable returns NOT_PROCESSED records whose file is
// available on the named filesystem.
func (s *SQLiteStore) SelectProcessable(ctx context.Context, filesystem string) ([]*model.ProcessingRecord, error) {
	status := model.StatusNotProcessed
	return s.ListRecords(ctx, Filter{Status: &status, Filesystem: filesystem})
}

// SetAvailability upserts one availability row. Idempotent.
func (s *SQLiteStore) SetAvailability(ctx context.Context, key model.RunKey, filesystem string, available bool) error {
	s.logger.Debug("sql", "op", "upsert", "table", "file_availability",
		"run", key.String(), "filesystem", filesystem, "available", available)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability update: %w", err)
	}
	defer tx.Rollback()

	rec, err := getRecordTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("run %s: %w", key, model.ErrMissingRecord)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO file_availability (night, run_id, filesystem, available)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (night, run_id, filesystem) DO UPDATE SET available = excluded.available`,
		key.Night, key.RunID, filesystem, boolToInt(available),
	); err != nil {
		return fmt.Errorf("upsert availability %s/%s: %w", key, filesystem, err)
	}

	return tx.Commit()
}

// SetExtension fills in the raw-file extension for a run.
func (s *SQLiteStore) SetExtension(ctx context.Context, key model.RunKey, extension string) error {
	s.logger.Debug("sql", "op", "update", "table", "processing_info", "run", key.String(), "extension", extension)

	result, err := s.db.ExecContext(ctx,
		`UPDATE processing_info SET extension = ?, updated_at = ? WHERE night = ? AND run_id = ?`,
		extension, now(), key.Night, key.RunID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", key, model.ErrMissingRecord)
	}
	return nil
}

// MarkError forces the run into ERROR under the transition guard.
func (s *SQLiteStore) MarkError(ctx context.Context, key model.RunKey) error {
	s.logger.Debug("sql", "op", "mark_error", "table", "processing_info", "run", key.String())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark error: %w", err)
	}
	defer tx.Rollback()

	rec, err := getRecordTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("run %s: %w", key, model.ErrMissingRecord)
	}
	if !rec.Status.CanTransitionTo(model.StatusError) {
		return &model.InvalidTransitionError{Run: key, From: rec.Status, To: model.StatusError}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE processing_info SET status = ?, updated_at = ? WHERE night = ? AND run_id = ?`,
		int(model.StatusError), now(), key.Night, key.RunID,
	); err != nil {
		return fmt.Errorf("update status %s: %w", key, err)
	}

	return tx.Commit()
}

// RecordResult writes the result of processing one run file: the event
// batch plus the PROCESSED status transition, as one atomic unit. A
// crash between event insertion and the status update rolls both back;
// a retried insert against an already-committed batch fails loudly on
// the event-table primary key instead of duplicating rows.
func (s *SQLiteStore) RecordResult(ctx context.Context, key model.RunKey, extension string, ignoreMissing bool, events []model.Event) error {
	s.logger.Debug("sql", "op", "record_result", "run", key.String(), "events", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record result: %w", err)
	}
	defer tx.Rollback()

	rec, err := getRecordTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		if !ignoreMissing {
			return fmt.Errorf("run %s: %w", key, model.ErrMissingRecord)
		}
		// Self-healing insert: the worker saw a file the discovery
		// step never recorded.
		s.logger.Info("ledger record missing, adding it", "run", key.String())
		ts := now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processing_info (night, run_id, extension, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			key.Night, key.RunID, extension, int(model.StatusNotProcessed), ts, ts,
		); err != nil {
			return fmt.Errorf("insert run %s: %w", key, err)
		}
		rec = &model.ProcessingRecord{RunKey: key, Extension: extension, Status: model.StatusNotProcessed}
	}

	if rec.Status == model.StatusProcessed {
		return fmt.Errorf("run %s: %w", key, model.ErrAlreadyProcessed)
	}
	if !rec.Status.CanTransitionTo(model.StatusProcessed) {
		return &model.InvalidTransitionError{Run: key, From: rec.Status, To: model.StatusProcessed}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO event_list (night, run_id, event_nr, utc, utc_us, event_type, run_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.Night, ev.RunID, ev.EventNr, ev.UTCSeconds, ev.UTCMicros, ev.EventType, int(ev.RunType),
		); err != nil {
			return fmt.Errorf("insert event %s/%d: %w", key, ev.EventNr, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE processing_info SET status = ?, updated_at = ? WHERE night = ? AND run_id = ?`,
		int(model.StatusProcessed), now(), key.Night, key.RunID,
	); err != nil {
		return fmt.Errorf("update status %s: %w", key, err)
	}

	return tx.Commit()
}

// CountByStatus returns how many records exist per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.ProcessStatus]int, error) {
	s.logger.Debug("sql", "op", "count_by_status", "table", "processing_info")

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM processing_info GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ProcessStatus]int)
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st, err := model.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// CountEvents returns the number of stored events for one run.
func (s *SQLiteStore) CountEvents(ctx context.Context, key model.RunKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_list WHERE night = ? AND run_id = ?`,
		key.Night, key.RunID,
	).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
