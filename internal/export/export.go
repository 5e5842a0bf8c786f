// Package export renders the registry's current contents to the
// distribution formats operators hand to auditors: JSONL, CSV, and a
// Markdown board report, plus a SHA256SUMS manifest over whatever was
// written. Every write emits one ledger event, and the JSONL, CSV, and
// Markdown writers finish by checkpointing the store's WAL so a filesystem
// snapshot taken immediately after export observes the data just exported.
// Checksums reads only the files it is given and does not checkpoint.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trustint/trustint/internal/canon"
	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/store"
)

// JSONL writes one JSON object per trust (slug, name, purpose,
// jurisdiction) to dir/trustint_export.jsonl and emits an "export" ledger
// event.
func JSONL(ctx context.Context, s *store.Store, log *ledger.Logger, dir string) (string, error) {
	out := filepath.Join(dir, "trustint_export.jsonl")
	rows, err := s.DB().QueryContext(ctx,
		`SELECT t.slug, t.name, t.purpose, j.code AS jurisdiction
		 FROM trusts t LEFT JOIN jurisdictions j ON t.jurisdiction_id = j.id`)
	if err != nil {
		return "", fmt.Errorf("export: jsonl query: %w", err)
	}
	defer rows.Close()

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("export: create %q: %w", out, err)
	}
	defer f.Close()

	for rows.Next() {
		var slug, name, purpose string
		var jurisdiction *string
		if err := rows.Scan(&slug, &name, &purpose, &jurisdiction); err != nil {
			return "", fmt.Errorf("export: scan: %w", err)
		}
		rec := map[string]any{"slug": slug, "name": name, "purpose": purpose}
		if jurisdiction != nil {
			rec["jurisdiction"] = *jurisdiction
		}
		line, err := canon.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("export: marshal jsonl row: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return "", fmt.Errorf("export: write jsonl: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("export: jsonl rows: %w", err)
	}

	if err := emit(log, "export", map[string]any{"format": "jsonl", "path": out}); err != nil {
		return "", err
	}
	return out, s.Checkpoint(ctx)
}

// CSV writes trusts, roles, and assets to dir/trustint_export.csv as a
// single flat table and emits an "export" ledger event.
func CSV(ctx context.Context, s *store.Store, log *ledger.Logger, dir string) (string, error) {
	out := filepath.Join(dir, "trustint_export.csv")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("export: create %q: %w", out, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"trust", "entity", "field1", "field2", "field3"}); err != nil {
		return "", fmt.Errorf("export: csv header: %w", err)
	}

	trusts, err := s.DB().QueryContext(ctx, `SELECT slug, name, purpose FROM trusts`)
	if err != nil {
		return "", fmt.Errorf("export: csv trusts query: %w", err)
	}
	if err := writeCSVRows(trusts, w, "trust"); err != nil {
		return "", err
	}

	roles, err := s.DB().QueryContext(ctx,
		`SELECT t.slug, r.role_type, r.party FROM roles r JOIN trusts t ON r.trust_id = t.id`)
	if err != nil {
		return "", fmt.Errorf("export: csv roles query: %w", err)
	}
	if err := writeCSVRows(roles, w, "role"); err != nil {
		return "", err
	}

	assets, err := s.DB().QueryContext(ctx,
		`SELECT t.slug, a.class, a.descriptor FROM assets a JOIN trusts t ON a.trust_id = t.id`)
	if err != nil {
		return "", fmt.Errorf("export: csv assets query: %w", err)
	}
	if err := writeCSVRows(assets, w, "asset"); err != nil {
		return "", err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("export: csv flush: %w", err)
	}

	if err := emit(log, "export", map[string]any{"format": "csv", "path": out}); err != nil {
		return "", err
	}
	return out, s.Checkpoint(ctx)
}

// writeCSVRows consumes rows (a "slug, field1, field2" shaped result set),
// emitting one CSV row of [slug, entity, field1, field2, ""] per result.
func writeCSVRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
	Close() error
}, w *csv.Writer, entity string) error {
	defer rows.Close()
	for rows.Next() {
		var slug, f1, f2 string
		if err := rows.Scan(&slug, &f1, &f2); err != nil {
			return fmt.Errorf("export: csv scan %s: %w", entity, err)
		}
		if err := w.Write([]string{slug, entity, f1, f2, ""}); err != nil {
			return fmt.Errorf("export: csv write %s: %w", entity, err)
		}
	}
	return rows.Err()
}

// Markdown writes a human-readable board report (one section per trust,
// with its roles and assets) to dir/board_report.md and emits an "export"
// ledger event.
func Markdown(ctx context.Context, s *store.Store, log *ledger.Logger, dir string) (string, error) {
	out := filepath.Join(dir, "board_report.md")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("export: create %q: %w", out, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "# TRUSTINT — Board Report"); err != nil {
		return "", fmt.Errorf("export: write markdown: %w", err)
	}
	fmt.Fprintln(f)

	trusts, err := s.DB().QueryContext(ctx,
		`SELECT t.id, t.slug, t.name, t.purpose, j.code AS jz
		 FROM trusts t LEFT JOIN jurisdictions j ON j.id = t.jurisdiction_id
		 ORDER BY t.slug`)
	if err != nil {
		return "", fmt.Errorf("export: markdown trusts query: %w", err)
	}
	defer trusts.Close()

	for trusts.Next() {
		var id int64
		var slug, name, purpose string
		var jurisdiction *string
		if err := trusts.Scan(&id, &slug, &name, &purpose, &jurisdiction); err != nil {
			return "", fmt.Errorf("export: markdown scan trust: %w", err)
		}
		jz := "—"
		if jurisdiction != nil {
			jz = *jurisdiction
		}
		fmt.Fprintf(f, "## %s (`%s`) — %s\n", name, slug, jz)
		if purpose != "" {
			fmt.Fprintf(f, "> %s\n\n", purpose)
		}

		fmt.Fprintln(f, "### Roles")
		if err := writeMarkdownRows(ctx, s, id,
			`SELECT role_type, party FROM roles WHERE trust_id = ?`,
			func(a, b string) { fmt.Fprintf(f, "- **%s** — %s\n", a, b) }); err != nil {
			return "", err
		}

		fmt.Fprintln(f, "\n### Assets")
		if err := writeMarkdownRows(ctx, s, id,
			`SELECT class, descriptor FROM assets WHERE trust_id = ?`,
			func(a, b string) { fmt.Fprintf(f, "- **%s** — %s\n", a, b) }); err != nil {
			return "", err
		}
		fmt.Fprintln(f, "\n---")
		fmt.Fprintln(f)
	}
	if err := trusts.Err(); err != nil {
		return "", fmt.Errorf("export: markdown trusts rows: %w", err)
	}

	if err := emit(log, "export", map[string]any{"format": "md", "path": out}); err != nil {
		return "", err
	}
	return out, s.Checkpoint(ctx)
}

func writeMarkdownRows(ctx context.Context, s *store.Store, trustID int64, query string, emitRow func(a, b string)) error {
	rows, err := s.DB().QueryContext(ctx, query, trustID)
	if err != nil {
		return fmt.Errorf("export: markdown sub-query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return fmt.Errorf("export: markdown sub-scan: %w", err)
		}
		emitRow(a, b)
	}
	return rows.Err()
}

// Checksums writes a SHA256SUMS manifest covering paths, in order, to
// dir/SHA256SUMS and emits a "checksums" ledger event.
func Checksums(log *ledger.Logger, dir string, paths []string) (string, error) {
	out := filepath.Join(dir, "SHA256SUMS")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("export: create %q: %w", out, err)
	}
	defer f.Close()

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		sum, err := canon.SHA256File(p)
		if err != nil {
			return "", fmt.Errorf("export: checksum %q: %w", p, err)
		}
		if _, err := fmt.Fprintf(f, "%s  %s\n", sum, filepath.Base(p)); err != nil {
			return "", fmt.Errorf("export: write checksums: %w", err)
		}
		names = append(names, filepath.Base(p))
	}

	if err := emit(log, "checksums", map[string]any{"files": names, "path": out}); err != nil {
		return "", err
	}
	return out, nil
}

func emit(log *ledger.Logger, eventType string, fields map[string]any) error {
	if log == nil {
		return nil
	}
	payload := map[string]any{"type": eventType}
	for k, v := range fields {
		payload[k] = v
	}
	if _, err := log.Append(payload); err != nil {
		return fmt.Errorf("export: ledger append %s: %w", eventType, err)
	}
	return nil
}
