package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crateside/sleeve/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the event database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS session_events (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	state      TEXT NOT NULL,
	detail     TEXT,
	at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
CREATE INDEX IF NOT EXISTS idx_session_events_at ON session_events(at);
`

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "store: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, ev model.SessionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (id, session_id, kind, state, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), ev.SessionID, string(ev.Kind), string(ev.State), ev.Detail, at.UTC(),
	)
	return eris.Wrapf(err, "store: record event for session %s", ev.SessionID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]model.SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT session_id, kind, state, detail, at FROM session_events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list events")
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var ev model.SessionEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.SessionID, &ev.Kind, &ev.State, &detail, &ev.At); err != nil {
			return nil, eris.Wrap(err, "store: scan event")
		}
		ev.Detail = detail.String
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "store: list events iterate")
}
