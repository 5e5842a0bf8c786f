// Package migrate discovers and applies versioned SQL migration scripts
// against the embedded store, tracking progress in a singleton
// schema_version row. Discovery and apply follow the same shape as a
// conventional migration tool: sorted, numbered scripts in one directory,
// each applied at most once, in order, with progress durably recorded
// before the next script runs.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/trustint/trustint/internal/canon"
	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/store"
)

// fileNamePattern matches migration script file names: V<digits>__<name>.sql
var fileNamePattern = regexp.MustCompile(`^V(\d+)__([A-Za-z0-9_]+)\.sql$`)

// Script is one discovered migration artifact.
type Script struct {
	Version int
	Name    string // the file's name without extension, e.g. "V002__add_obligations"
	Path    string
}

// Discover reads dir and returns every file matching fileNamePattern,
// sorted ascending by parsed version. Non-matching files (e.g. notes.txt)
// are silently ignored. An absent directory yields an empty, non-error
// result: a fresh vault with no migrations yet is a normal state.
func Discover(dir string) ([]Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("migrate: read dir %q: %w", dir, err)
	}

	var scripts []Script
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			// Unreachable: fileNamePattern only matches digit runs.
			continue
		}
		scripts = append(scripts, Script{
			Version: version,
			Name:    e.Name()[:len(e.Name())-len(filepath.Ext(e.Name()))],
			Path:    filepath.Join(dir, e.Name()),
		})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// currentVersionDDL creates the singleton schema_version table if absent.
const currentVersionDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL
);
`

// legacyTableName is the multi-row shape a pre-singleton store may still
// carry; Current collapses it into the singleton table on first read.
const legacyTableName = "schema_migrations"

// Current returns the currently applied schema version, initializing the
// singleton schema_version row to 0 if the table is new. If a legacy
// multi-row schema_migrations table is present, it is collapsed into the
// singleton shape (taking MAX(version)) in the same transaction, per
// §4.G's redesign of the original prototype's migrations table.
func Current(ctx context.Context, s *store.Store) (int, error) {
	if _, err := s.DB().ExecContext(ctx, currentVersionDDL); err != nil {
		return 0, fmt.Errorf("migrate: create schema_version: %w", err)
	}

	var version int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		legacyVersion, hasLegacy, err := collapseLegacyTable(ctx, tx)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`)
		switch scanErr := row.Scan(&version); scanErr {
		case sql.ErrNoRows:
			if hasLegacy {
				version = legacyVersion
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_version (id, version) VALUES (1, ?)`, version); err != nil {
				return fmt.Errorf("migrate: seed schema_version: %w", err)
			}
		case nil:
			// Already present; nothing to do.
		default:
			return fmt.Errorf("migrate: read schema_version: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// collapseLegacyTable checks for the legacy multi-row schema_migrations
// table and, if present, drops it after extracting MAX(version). hasLegacy
// is false (and legacyVersion 0) when the table does not exist.
func collapseLegacyTable(ctx context.Context, tx *sql.Tx) (legacyVersion int, hasLegacy bool, err error) {
	var tableName string
	row := tx.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, legacyTableName)
	switch scanErr := row.Scan(&tableName); scanErr {
	case sql.ErrNoRows:
		return 0, false, nil
	case nil:
		// fall through
	default:
		return 0, false, fmt.Errorf("migrate: probe legacy table: %w", scanErr)
	}

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT MAX(CAST(version AS INTEGER)) FROM %s`, legacyTableName),
	).Scan(&maxVersion); err != nil {
		return 0, false, fmt.Errorf("migrate: read legacy versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, legacyTableName)); err != nil {
		return 0, false, fmt.Errorf("migrate: drop legacy table: %w", err)
	}
	return int(maxVersion.Int64), true, nil
}

// setVersion updates the singleton schema_version row within tx.
func setVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ? WHERE id = 1`, version)
	if err != nil {
		return fmt.Errorf("migrate: set version: %w", err)
	}
	return nil
}

// Result summarizes one Run invocation.
type Result struct {
	StartVersion int
	EndVersion   int
	Applied      []Script
}

// Run discovers migrations under dir and applies every script with
// current < version <= target against s, recording one MIGRATION_APPLY
// ledger event per applied script. target of 0 means "the highest
// discovered version". If the store is already at or beyond target, Run
// is a no-op and returns a Result with an empty Applied slice.
//
// Each script is applied in its own transaction: the script body runs as
// one executed batch, then the schema_version row is advanced, so a crash
// mid-run leaves the store at the version of the last fully-applied
// migration, never a partially-applied one.
func Run(ctx context.Context, s *store.Store, log *ledger.Logger, dir string, target int) (Result, error) {
	scripts, err := Discover(dir)
	if err != nil {
		return Result{}, err
	}

	current, err := Current(ctx, s)
	if err != nil {
		return Result{}, err
	}

	effectiveTarget := target
	if effectiveTarget == 0 {
		for _, sc := range scripts {
			if sc.Version > effectiveTarget {
				effectiveTarget = sc.Version
			}
		}
	}

	result := Result{StartVersion: current, EndVersion: current}
	if current >= effectiveTarget {
		return result, nil
	}

	for _, sc := range scripts {
		if sc.Version <= current || sc.Version > effectiveTarget {
			continue
		}

		body, err := os.ReadFile(sc.Path)
		if err != nil {
			return result, fmt.Errorf("migrate: read %q: %w", sc.Path, err)
		}
		digest, err := canon.SHA256File(sc.Path)
		if err != nil {
			return result, fmt.Errorf("migrate: hash %q: %w", sc.Path, err)
		}

		if err := s.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("migrate: apply %s: %w", sc.Name, err)
			}
			return setVersion(ctx, tx, sc.Version)
		}); err != nil {
			return result, err
		}

		if log != nil {
			if _, err := log.Append(map[string]any{
				"type":    "MIGRATION_APPLY",
				"version": sc.Version,
				"script":  sc.Name,
				"sha256":  digest,
			}); err != nil {
				return result, fmt.Errorf("migrate: ledger append for %s: %w", sc.Name, err)
			}
		}

		result.Applied = append(result.Applied, sc)
		result.EndVersion = sc.Version
		current = sc.Version
	}

	return result, nil
}
