package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/crateside/sleeve/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool, for deployments where
// several scanner instances share one event log.
type PostgresStore struct {
	pool Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS session_events (
	id         UUID PRIMARY KEY,
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	state      TEXT NOT NULL,
	detail     TEXT,
	at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
CREATE INDEX IF NOT EXISTS idx_session_events_at ON session_events(at);
`

// NewPostgres creates a PostgresStore with a connection pool and runs the
// migration.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse postgres config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}

	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: migrate postgres")
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, ev model.SessionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_events (id, session_id, kind, state, detail, at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), ev.SessionID, string(ev.Kind), string(ev.State), ev.Detail, at.UTC(),
	)
	return eris.Wrapf(err, "store: record event for session %s", ev.SessionID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]model.SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	if sessionID != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT session_id, kind, state, detail, at FROM session_events WHERE session_id = $1 ORDER BY at DESC LIMIT $2`,
			sessionID, limit,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT session_id, kind, state, detail, at FROM session_events ORDER BY at DESC LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: list events")
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var ev model.SessionEvent
		var detail *string
		if err := rows.Scan(&ev.SessionID, &ev.Kind, &ev.State, &detail, &ev.At); err != nil {
			return nil, eris.Wrap(err, "store: scan event")
		}
		if detail != nil {
			ev.Detail = *detail
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "store: list events iterate")
}
