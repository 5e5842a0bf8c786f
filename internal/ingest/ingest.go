// Package ingest loads validated declarative documents into the embedded
// store and rebuilds the full-text search index. Every insert is
// conditional on the unique identifier not already existing (INSERT OR
// IGNORE), so running ingest twice over the same documents leaves the row
// counts of the first run unchanged (the search index is rebuilt and an
// ingest ledger event is appended on every run): this is the idempotence
// invariant ingest(ingest(D)) ≡ ingest(D) from spec §8.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trustint/trustint/internal/canon"
	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/model"
	"github.com/trustint/trustint/internal/store"
)

// Counters reports the current totals in the store after ingest, not the
// deltas of the run just performed — a conflicting record that was already
// present is not double-counted, but it is also not distinguished from one
// newly inserted by this call.
type Counters struct {
	Jurisdictions int `json:"jurisdictions"`
	Trusts        int `json:"trusts"`
	Roles         int `json:"roles"`
	Assets        int `json:"assets"`
	Obligations   int `json:"obligations"`
}

// Run ingests docs into s within a single transaction, rebuilds the
// search index, and emits one ledger "ingest" event carrying the resulting
// Counters. Any conflict (a row whose unique identifier already exists) is
// silently ignored by the database and does not fail the run.
func Run(ctx context.Context, s *store.Store, log *ledger.Logger, docs model.Documents) (Counters, error) {
	var counters Counters

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, j := range docs.Laws.Jurisdictions {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO jurisdictions (code, name) VALUES (?, ?)`,
				j.Code, j.Name); err != nil {
				return fmt.Errorf("ingest: jurisdiction %q: %w", j.Code, err)
			}
		}

		now := time.Now().UTC().Format(time.RFC3339)
		for _, t := range docs.Trusts {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO trusts (slug, name, purpose, jurisdiction_id, created_at, updated_at)
				 VALUES (?, ?, ?, (SELECT id FROM jurisdictions WHERE code = ?), ?, ?)`,
				t.Slug, t.Name, t.Purpose, t.Jurisdiction, now, now); err != nil {
				return fmt.Errorf("ingest: trust %q: %w", t.Slug, err)
			}
		}

		for _, r := range docs.Roles {
			powers, err := canon.Marshal(orEmpty(r.Powers))
			if err != nil {
				return fmt.Errorf("ingest: canonicalize powers for %s/%s: %w", r.Trust, r.Party, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO roles (trust_id, role_type, party, powers)
				 SELECT id, ?, ?, ? FROM trusts WHERE slug = ?`,
				r.RoleType, r.Party, powers, r.Trust); err != nil {
				return fmt.Errorf("ingest: role %s/%s: %w", r.Trust, r.Party, err)
			}
		}

		for _, a := range docs.Assets {
			metadata, err := canon.Marshal(orEmpty(a.Metadata))
			if err != nil {
				return fmt.Errorf("ingest: canonicalize metadata for %s/%s: %w", a.Trust, a.Descriptor, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO assets (trust_id, class, descriptor, jurisdiction_id, metadata)
				 SELECT id, ?, ?, (SELECT id FROM jurisdictions WHERE code = ?), ?
				 FROM trusts WHERE slug = ?`,
				a.Class, a.Descriptor, a.Jurisdiction, metadata, a.Trust); err != nil {
				return fmt.Errorf("ingest: asset %s/%s: %w", a.Trust, a.Descriptor, err)
			}
		}

		for _, o := range docs.Laws.Obligations {
			details, err := canon.Marshal(orEmpty(o.Details))
			if err != nil {
				return fmt.Errorf("ingest: canonicalize details for %s/%s: %w", o.Trust, o.Name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO obligations (trust_id, name, kind, schedule, authority, details)
				 SELECT id, ?, ?, ?, ?, ? FROM trusts WHERE slug = ?`,
				o.Name, o.Kind, o.Schedule, o.Authority, details, o.Trust); err != nil {
				return fmt.Errorf("ingest: obligation %s/%s: %w", o.Trust, o.Name, err)
			}
		}

		var err error
		if counters, err = countAll(ctx, tx); err != nil {
			return err
		}
		return rebuildSearchIndex(ctx, tx)
	})
	if err != nil {
		return Counters{}, err
	}

	if log != nil {
		if _, err := log.Append(map[string]any{
			"type":     "ingest",
			"source":   "config/",
			"counters": countersToMap(counters),
		}); err != nil {
			return counters, fmt.Errorf("ingest: ledger append: %w", err)
		}
	}

	return counters, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func countersToMap(c Counters) map[string]any {
	return map[string]any{
		"jurisdictions": c.Jurisdictions,
		"trusts":        c.Trusts,
		"roles":         c.Roles,
		"assets":        c.Assets,
		"obligations":   c.Obligations,
	}
}

func countAll(ctx context.Context, tx *sql.Tx) (Counters, error) {
	var c Counters
	rows := []struct {
		table string
		dst   *int
	}{
		{"jurisdictions", &c.Jurisdictions},
		{"trusts", &c.Trusts},
		{"roles", &c.Roles},
		{"assets", &c.Assets},
		{"obligations", &c.Obligations},
	}
	for _, r := range rows {
		if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(r.dst); err != nil {
			return Counters{}, fmt.Errorf("ingest: count %s: %w", r.table, err)
		}
	}
	return c, nil
}

// indexRow is one pending search_idx insert collected from a source table.
type indexRow struct {
	scope, key, content string
}

// rebuildSearchIndex deletes every row of search_idx and re-emits one row
// per trust, role, asset, and obligation, concatenating their human-facing
// fields with single spaces as the indexed content.
//
// Each source table is read to completion (rows collected into a slice,
// cursor closed) before any INSERT runs, rather than writing while a SELECT
// cursor is still open on the same connection — the store is configured
// with a single pooled connection, so a nested statement would otherwise
// contend with the open cursor.
func rebuildSearchIndex(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_idx`); err != nil {
		return fmt.Errorf("ingest: clear search_idx: %w", err)
	}

	var rows []indexRow

	trustContent, err := queryIndexRows(ctx, tx,
		`SELECT slug, name, purpose FROM trusts`, "trusts", 2)
	if err != nil {
		return err
	}
	rows = append(rows, trustContent...)

	roleContent, err := queryIndexRows(ctx,
		tx, `SELECT t.slug, r.role_type, r.party FROM roles r JOIN trusts t ON r.trust_id = t.id`,
		"roles", 2)
	if err != nil {
		return err
	}
	rows = append(rows, roleContent...)

	assetContent, err := queryIndexRows(ctx,
		tx, `SELECT t.slug, a.class, a.descriptor FROM assets a JOIN trusts t ON a.trust_id = t.id`,
		"assets", 2)
	if err != nil {
		return err
	}
	rows = append(rows, assetContent...)

	obligationContent, err := queryIndexRows(ctx,
		tx, `SELECT t.slug, o.name, o.kind, o.authority FROM obligations o JOIN trusts t ON o.trust_id = t.id`,
		"obligations", 3)
	if err != nil {
		return err
	}
	rows = append(rows, obligationContent...)

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_idx (scope, key, content) VALUES (?, ?, ?)`,
			r.scope, r.key, r.content); err != nil {
			return fmt.Errorf("ingest: index %s %q: %w", r.scope, r.key, err)
		}
	}
	return nil
}

// queryIndexRows runs query, which must select a key column followed by
// exactly contentFields string columns, and returns one indexRow per
// result row with content set to the space-joined trailing columns.
func queryIndexRows(ctx context.Context, tx *sql.Tx, query, scope string, contentFields int) ([]indexRow, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ingest: query %s for index: %w", scope, err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		dest := make([]any, 1+contentFields)
		vals := make([]string, 1+contentFields)
		for i := range dest {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ingest: scan %s for index: %w", scope, err)
		}
		out = append(out, indexRow{scope: scope, key: vals[0], content: joinFields(vals[1:]...)})
	}
	return out, rows.Err()
}

func joinFields(fields ...string) string {
	return strings.Join(fields, " ")
}
