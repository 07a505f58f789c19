// Package history keeps a local audit trail of submissions, batch runs,
// and exports in SQLite. It is a client-side convenience log; the backend
// remains the source of truth for job state.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Action classifies a history entry.
type Action string

const (
	ActionSubmit Action = "submit"
	ActionBatch  Action = "batch"
	ActionExport Action = "export"
)

// Entry is one recorded action.
type Entry struct {
	ID        string
	Action    Action
	JobID     string
	CaseID    string
	Detail    string
	CreatedAt time.Time
}

// Store is a SQLite-backed history log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and configures WAL
// mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "history: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "history: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS history (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	job_id     TEXT,
	case_id    TEXT,
	detail     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_history_case_id ON history(case_id);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
`

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "history: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts an entry and returns it with ID and timestamp filled in.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, action, job_id, case_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.JobID, e.CaseID, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return Entry{}, eris.Wrap(err, "history: record")
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, job_id, case_id, detail, created_at
		 FROM history ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "history: query recent")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &action, &e.JobID, &e.CaseID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "history: scan entry")
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "history: iterate entries")
}
