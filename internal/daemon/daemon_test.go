package daemon_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/trustint/trustint/internal/config"
	"github.com/trustint/trustint/internal/daemon"
)

const testMigrationSQL = `
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
    class TEXT, descriptor TEXT, jurisdiction_id INTEGER REFERENCES jurisdictions(id), metadata BLOB DEFAULT ''
);
CREATE TABLE obligations (
    id INTEGER PRIMARY KEY AUTOINCREMENT, trust_id INTEGER REFERENCES trusts(id),
    name TEXT, kind TEXT, schedule TEXT DEFAULT '', authority TEXT DEFAULT '', details BLOB DEFAULT ''
);
CREATE VIRTUAL TABLE search_idx USING fts5(scope, key, content, tokenize = 'unicode61 remove_diacritics 2');
CREATE TABLE quarantine_tickets (id TEXT PRIMARY KEY, reason TEXT, sha256 TEXT, created_at TEXT, resolved_at TEXT, note TEXT);
CREATE TABLE inbox_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT, sha256 TEXT, source_path TEXT, size_bytes INTEGER,
    file_ext TEXT DEFAULT '', policy_id TEXT DEFAULT '',
    decision TEXT CHECK (decision IN ('ACCEPT', 'REJECT', 'DUPLICATE')),
    ticket_id TEXT REFERENCES quarantine_tickets(id), observed_at TEXT
);
`

func newTestDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	root := t.TempDir()
	vault := filepath.Join(root, "vault")
	migrations := filepath.Join(root, "migrations")
	configDir := filepath.Join(root, "config")
	for _, dir := range []string{vault, migrations, configDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatalf("mkdir %q: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(migrations, "V001__initial_schema.sql"), []byte(testMigrationSQL), 0o600); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "trusts.yaml"), []byte(`
- slug: harbor-trust
  name: Harbor Trust
  jurisdiction: NZ
`), 0o600); err != nil {
		t.Fatalf("write trusts.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "roles.yaml"), []byte(`
- trust: harbor-trust
  role: trustee
  party: Jane Doe
`), 0o600); err != nil {
		t.Fatalf("write roles.yaml: %v", err)
	}

	cfg := &config.Config{
		VaultDir:      vault,
		InboxDir:      filepath.Join(vault, "inbox"),
		RawVaultDir:   filepath.Join(vault, "raw"),
		QuarantineDir: filepath.Join(vault, "quarantine"),
		MigrationsDir: migrations,
		ConfigDir:     configDir,
		LogLevel:      "info",
	}
	cfg.Policy.PolicyID = "default"
	cfg.Policy.Rules.AllowedExtensions = []string{".pdf", ".txt"}
	cfg.Policy.Rules.MaxSizeBytes = 1024

	for _, dir := range []string{cfg.InboxDir, cfg.RawVaultDir, cfg.QuarantineDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatalf("mkdir %q: %v", dir, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d, err := daemon.New(cfg, logger, filepath.Join(vault, ".hmac_key"))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })
	return d, cfg
}

func TestBootstrap_MigratesIngestsAndDrainsInbox(t *testing.T) {
	d, _ := newTestDaemon(t)

	if err := os.WriteFile(filepath.Join(d.Intake.InboxDir, "a.pdf"), []byte("hello"), 0o600); err != nil {
		t.Fatalf("write inbox file: %v", err)
	}

	if err := d.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	var count int
	if err := d.Store.DB().QueryRow(`SELECT COUNT(*) FROM trusts`).Scan(&count); err != nil {
		t.Fatalf("count trusts: %v", err)
	}
	if count != 1 {
		t.Errorf("trusts count = %d, want 1", count)
	}

	entries, err := os.ReadDir(d.Intake.InboxDir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("inbox not drained: %v, err = %v", entries, err)
	}

	status := d.Status()
	if !status.Running {
		t.Error("Status.Running = false after Bootstrap")
	}
}

func TestBootstrap_FailsValidationWhenTrustHasNoTrustee(t *testing.T) {
	d, cfg := newTestDaemon(t)
	if err := os.Remove(filepath.Join(cfg.ConfigDir, "roles.yaml")); err != nil {
		t.Fatalf("remove roles.yaml: %v", err)
	}

	if err := d.Bootstrap(context.Background()); err == nil {
		t.Fatal("expected validation failure with no trustee role")
	}
}
