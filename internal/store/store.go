// Package store wraps the embedded relational database backing the trust
// registry: jurisdictions, trusts, roles, assets, obligations, the schema
// version row, and the full-text search index. It is a single-writer,
// WAL-mode modernc.org/sqlite database, opened the same way the rest of
// this codebase opens its embedded SQLite databases (one connection, WAL
// journal mode, NORMAL synchronous), generalized here to additionally
// enforce foreign keys and expose a checkpoint operation for the export
// path.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Store is a handle to the embedded relational database. Create one with
// Open; it is safe for concurrent use by virtue of a single-connection
// pool serializing all access.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, creating its parent
// directory if needed, and configures it for single-writer WAL operation
// with foreign-key enforcement. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("store: mkdir %q: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	// SQLite allows only one writer at a time; a single pooled connection
	// avoids "database is locked" errors under concurrent callers and keeps
	// PRAGMA settings (which are per-connection) applied consistently.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// DB returns the underlying *sql.DB for callers (migrate, ingest) that need
// direct query access beyond the helpers here.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing if fn returns nil and
// rolling back otherwise. On rollback, fn's error is returned unchanged
// and any rollback error is discarded; if fn succeeds but the commit
// fails, the commit error is returned.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Checkpoint forces a WAL checkpoint so that readers of the main database
// file (e.g. a backup taken between daemon runs) observe the latest
// committed data. The export path calls this after writing its output.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(NORMAL)`); err != nil {
		return fmt.Errorf("store: checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
