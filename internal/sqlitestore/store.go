// Package sqlitestore provides the durable render-cache tier backed by a
// local SQLite database. Artifacts survive process restarts; the cache
// generation recorded by Clear makes stale writes from renders that were
// in flight during a clear detectable and rejectable.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	tgrender "github.com/rmolchanov/go-tgrender"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	fingerprint TEXT PRIMARY KEY,
	artifact    BLOB NOT NULL,
	generation  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO meta (key, value) VALUES ('generation', 0);
`

// Store implements the tgrender.Store durable tier on a SQLite file.
// Safe for concurrent use; WAL mode keeps readers and the writer apart.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path. ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored artifact for a fingerprint, or ok=false.
func (s *Store) Get(ctx context.Context, fp tgrender.Fingerprint) ([]byte, bool, error) {
	var artifact []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact FROM artifacts WHERE fingerprint = ?`, string(fp),
	).Scan(&artifact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading artifact: %w", err)
	}
	return artifact, true, nil
}

// Put stores an artifact tagged with the cache generation that produced
// it. Writes whose generation predates the last Clear are dropped: the
// clear must win over renders that were already running when it happened.
func (s *Store) Put(ctx context.Context, fp tgrender.Fingerprint, data []byte, generation uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'generation'`,
	).Scan(&current); err != nil {
		return fmt.Errorf("reading generation: %w", err)
	}
	if generation < current {
		// Stale render from before a clear; dropping it is the contract.
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO artifacts (fingerprint, artifact, generation, created_at)
		 VALUES (?, ?, ?, ?)`,
		string(fp), data, generation, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return tx.Commit()
}

// Clear removes all entries and records the new current generation.
func (s *Store) Clear(ctx context.Context, generation uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("purging artifacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE meta SET value = ? WHERE key = 'generation' AND value < ?`,
		generation, generation,
	); err != nil {
		return fmt.Errorf("recording generation: %w", err)
	}
	return tx.Commit()
}

// Len reports the number of stored artifacts. Used by health reporting.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM artifacts`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting artifacts: %w", err)
	}
	return n, nil
}
