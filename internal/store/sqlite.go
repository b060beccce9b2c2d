package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tuckwoor/garmin-analysis/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Journal = (*SQLiteJournal)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	start_date  TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fetches (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	data_type  TEXT NOT NULL,
	key        TEXT NOT NULL,
	status     TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	attempts   INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetches_run ON fetches(run_id);
CREATE INDEX IF NOT EXISTS idx_fetches_status ON fetches(status);
`

// RunStatusRunning marks a run that has not finished.
const RunStatusRunning = "running"

// SQLiteJournal implements Journal backed by a SQLite database.
type SQLiteJournal struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath, creates
// the journal tables and returns a ready-to-use SQLiteJournal.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLiteJournal{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// StartRun inserts a run in the running state.
func (s *SQLiteJournal) StartRun(ctx context.Context, mode domain.RunMode, startDate string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, start_date, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, string(mode), startDate, s.now().UnixMilli(), RunStatusRunning)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun sets the run's final status and finish time.
func (s *SQLiteJournal) FinishRun(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, s.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteJournal) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, start_date, started_at, finished_at, status
		   FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			r        domain.RunRecord
			mode     string
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &mode, &r.StartDate, &started, &finished, &r.Status); err != nil {
			return nil, err
		}
		r.Mode = domain.RunMode(mode)
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Fetches
// ---------------------------------------------------------------------------

// RecordFetch appends one fetch outcome. A zero FetchedAt is stamped with the
// current time.
func (s *SQLiteJournal) RecordFetch(ctx context.Context, rec domain.FetchRecord) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetches (run_id, data_type, key, status, error_kind, message, attempts, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, string(rec.DataType), rec.Key, string(rec.Status),
		rec.ErrorKind, rec.Message, rec.Attempts, rec.FetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording fetch %s/%s: %w", rec.DataType, rec.Key, err)
	}
	return nil
}

// ListFetches returns fetch records matching q, newest first.
func (s *SQLiteJournal) ListFetches(ctx context.Context, q FetchQuery) ([]domain.FetchRecord, error) {
	query := `SELECT run_id, data_type, key, status, error_kind, message, attempts, fetched_at
	            FROM fetches WHERE 1 = 1`
	var args []any
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	query += ` ORDER BY fetched_at DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing fetches: %w", err)
	}
	defer rows.Close()

	var recs []domain.FetchRecord
	for rows.Next() {
		var (
			r        domain.FetchRecord
			dataType string
			status   string
			fetched  int64
		)
		if err := rows.Scan(&r.RunID, &dataType, &r.Key, &status, &r.ErrorKind, &r.Message, &r.Attempts, &fetched); err != nil {
			return nil, err
		}
		r.DataType = domain.DataType(dataType)
		r.Status = domain.FetchStatus(status)
		r.FetchedAt = time.UnixMilli(fetched)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
