// Package history persists an append-only audit trail of exerciser runs to
// a SQLite database, using database/sql against modernc.org/sqlite the way
// tinySQL's own driver exposes itself through database/sql — a consumer of
// the same driver family, not of tinySQL's own SQL engine.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/defghij/diskxerciser/internal/xerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	config_summary  TEXT NOT NULL,
	pages_written   INTEGER NOT NULL,
	pages_verified  INTEGER NOT NULL,
	pages_failed    INTEGER NOT NULL,
	bytes_moved     INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL
);`

// Store wraps a database/sql handle scoped to the run-history table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dsn and
// ensures the run-history schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerr.New("history.Open", xerr.KindIOError, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, xerr.New("history.Open", xerr.KindIOError, fmt.Errorf("create schema: %w", err))
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Run is one persisted run-history record.
type Run struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	ConfigSummary string
	PagesWritten  uint64
	PagesVerified uint64
	PagesFailed   uint64
	BytesMoved    uint64
	Duration      time.Duration
}

// Record appends one run to the history table. The table is append-only —
// there is no Update; a correction is a new row.
func (s *Store) Record(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, config_summary,
			pages_written, pages_verified, pages_failed, bytes_moved, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt.Format(time.RFC3339Nano), r.FinishedAt.Format(time.RFC3339Nano),
		r.ConfigSummary, r.PagesWritten, r.PagesVerified, r.PagesFailed, r.BytesMoved,
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return xerr.New("history.Record", xerr.KindIOError, err)
	}
	return nil
}

// Recent returns up to limit most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, config_summary,
			pages_written, pages_verified, pages_failed, bytes_moved, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerr.New("history.Recent", xerr.KindIOError, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var durationMS int64
		if err := rows.Scan(&r.RunID, &started, &finished, &r.ConfigSummary,
			&r.PagesWritten, &r.PagesVerified, &r.PagesFailed, &r.BytesMoved, &durationMS); err != nil {
			return nil, xerr.New("history.Recent", xerr.KindIOError, err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
