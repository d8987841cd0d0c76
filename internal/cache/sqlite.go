package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crateside/sleeve/internal/model"
)

// SQLite is a Store backed by modernc.org/sqlite, for cache keys that must
// survive process restarts.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the cache database at dsn and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	key                 TEXT PRIMARY KEY,
	status              TEXT NOT NULL,
	payload             TEXT,
	failure_recorded_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_status ON enrichment_cache(status);
`

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "cache: migrate")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, status, payload, failure_recorded_at FROM enrichment_cache WHERE key = ?`,
		key,
	)
	return scanEntry(row)
}

func (s *SQLite) PutSuccess(ctx context.Context, key string, payload *model.Enrichment) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "cache: marshal payload")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (key, status, payload, failure_recorded_at)
		 VALUES (?, ?, ?, NULL)
		 ON CONFLICT(key) DO UPDATE SET status = excluded.status, payload = excluded.payload, failure_recorded_at = NULL`,
		key, string(StatusSucceeded), string(payloadJSON),
	)
	return eris.Wrapf(err, "cache: put success %s", key)
}

func (s *SQLite) PutFailure(ctx context.Context, key string, at time.Time) error {
	// Never downgrade a recorded success.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (key, status, payload, failure_recorded_at)
		 VALUES (?, ?, NULL, ?)
		 ON CONFLICT(key) DO UPDATE SET status = excluded.status, failure_recorded_at = excluded.failure_recorded_at
		 WHERE enrichment_cache.status != 'succeeded'`,
		key, string(StatusFailed), at.UTC(),
	)
	return eris.Wrapf(err, "cache: put failure %s", key)
}

func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, status, payload, failure_recorded_at FROM enrichment_cache ORDER BY key`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "cache: list iterate")
}

func (s *SQLite) PurgeFailures(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE status = 'failed'`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: purge failures")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "cache: rows affected")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*Entry, error) {
	var e Entry
	var payloadJSON sql.NullString
	var failedAt sql.NullTime

	err := row.Scan(&e.Key, &e.Status, &payloadJSON, &failedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: scan entry")
	}

	if payloadJSON.Valid {
		e.Payload = &model.Enrichment{}
		if err := json.Unmarshal([]byte(payloadJSON.String), e.Payload); err != nil {
			return nil, eris.Wrap(err, "cache: unmarshal payload")
		}
	}
	if failedAt.Valid {
		e.FailureRecordedAt = failedAt.Time
	}
	return &e, nil
}
