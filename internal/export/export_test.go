package export_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trustint/trustint/internal/export"
	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/store"
)

const schemaSQL = `
CREATE TABLE jurisdictions (id INTEGER PRIMARY KEY AUTOINCREMENT, code TEXT UNIQUE, name TEXT);
CREATE TABLE trusts (
    id INTEGER PRIMARY KEY AUTOINCREMENT, slug TEXT UNIQUE, name TEXT, purpose TEXT DEFAULT '',
    jurisdiction_id INTEGER REFERENCES jurisdictions(id), created_at TEXT, updated_at TEXT
);
CREATE TABLE roles (
    id INTEGER PRIMARY KEY AUTOINCREMENT, trust_id INTEGER REFERENCES trusts(id),
    role_type TEXT, party TEXT, powers BLOB DEFAULT ''
);
CREATE TABLE assets (
    id INTEGER PRIMARY KEY AUTOINCREMENT, trust_id INTEGER REFERENCES trusts(id),
    class TEXT, descriptor TEXT, jurisdiction_id INTEGER, metadata BLOB DEFAULT ''
);
`

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trustint.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.DB().Exec(schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := s.DB().Exec(`INSERT INTO jurisdictions (code, name) VALUES ('NZ', 'New Zealand')`); err != nil {
		t.Fatalf("seed jurisdiction: %v", err)
	}
	if _, err := s.DB().Exec(
		`INSERT INTO trusts (slug, name, purpose, jurisdiction_id, created_at, updated_at)
		 VALUES ('harbor-trust', 'Harbor Trust', 'coastal conservation', 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("seed trust: %v", err)
	}
	if _, err := s.DB().Exec(
		`INSERT INTO roles (trust_id, role_type, party) VALUES (1, 'trustee', 'Jane Doe')`); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	if _, err := s.DB().Exec(
		`INSERT INTO assets (trust_id, class, descriptor) VALUES (1, 'air', '200ft AGL corridor')`); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return s
}

func TestJSONL_WritesOneLinePerTrust(t *testing.T) {
	s := seededStore(t)
	dir := t.TempDir()

	path, err := export.JSONL(context.Background(), s, nil, dir)
	if err != nil {
		t.Fatalf("JSONL: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %s", len(lines), contents)
	}
	if !strings.Contains(lines[0], "harbor-trust") || !strings.Contains(lines[0], "NZ") {
		t.Errorf("line = %q, want slug and jurisdiction", lines[0])
	}
}

func TestCSV_IncludesTrustRoleAndAssetRows(t *testing.T) {
	s := seededStore(t)
	dir := t.TempDir()

	path, err := export.CSV(context.Background(), s, nil, dir)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}
	text := string(contents)
	for _, want := range []string{"trust,harbor-trust,Harbor Trust", "role,trustee,Jane Doe", "asset,air,200ft AGL corridor"} {
		if !strings.Contains(text, want) {
			t.Errorf("csv missing %q:\n%s", want, text)
		}
	}
}

func TestMarkdown_RendersBoardReport(t *testing.T) {
	s := seededStore(t)
	dir := t.TempDir()

	path, err := export.Markdown(context.Background(), s, nil, dir)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}
	text := string(contents)
	for _, want := range []string{"# TRUSTINT", "Harbor Trust", "harbor-trust", "trustee", "Jane Doe", "200ft AGL corridor"} {
		if !strings.Contains(text, want) {
			t.Errorf("markdown missing %q:\n%s", want, text)
		}
	}
}

func TestChecksums_WritesManifestAndLedgerEvent(t *testing.T) {
	s := seededStore(t)
	dir := t.TempDir()

	jsonlPath, err := export.JSONL(context.Background(), s, nil, dir)
	if err != nil {
		t.Fatalf("JSONL: %v", err)
	}

	ledgerPath := filepath.Join(t.TempDir(), "events.jsonl")
	key := []byte(strings.Repeat("k", 32))
	l, err := ledger.Open(ledgerPath, key)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	sumsPath, err := export.Checksums(l, dir, []string{jsonlPath})
	if err != nil {
		t.Fatalf("Checksums: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	contents, err := os.ReadFile(sumsPath)
	if err != nil {
		t.Fatalf("read %q: %v", sumsPath, err)
	}
	if !strings.Contains(string(contents), filepath.Base(jsonlPath)) {
		t.Errorf("checksums manifest missing file name: %s", contents)
	}

	count, verr := ledger.Verify(ledgerPath, key)
	if verr != nil {
		t.Fatalf("Verify: %v", verr)
	}
	if count != 1 {
		t.Errorf("ledger event count = %d, want 1", count)
	}
}
