// Package intake implements the content-addressed admission pipeline that
// moves files from an inbox directory into either the raw vault or a
// quarantine area. Each file proceeds through a small state machine
// (OBSERVED -> HASHED -> {DUPLICATE | POLICY_CHECK} -> {ACCEPT | REJECT}),
// and every transition emits one event through the provenance ledger. The
// poll-and-diff structure of Engine.Drain is adapted from the watcher used
// elsewhere in this codebase for filesystem monitoring, generalized here to
// a one-shot directory scan rather than a continuously ticking goroutine.
package intake

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trustint/trustint/internal/canon"
	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/store"
)

// Decision is the terminal classification of one inbox submission.
type Decision string

const (
	DecisionAccept    Decision = "ACCEPT"
	DecisionReject    Decision = "REJECT"
	DecisionDuplicate Decision = "DUPLICATE"
)

// Reject codes named by spec §4.J.
const (
	CodeDisallowedExtension = "E001"
	CodeOversize            = "E002"
	CodeProcessingError     = "E004"
)

// Engine drives the intake state machine for a single inbox directory
// against one store and one ledger.
type Engine struct {
	InboxDir      string
	RawVaultDir   string
	QuarantineDir string
	Policy        Policy

	Store  *store.Store
	Ledger *ledger.Logger
	Logger *slog.Logger
}

// Drain processes every existing regular file in InboxDir, in file-name
// order, before the caller subscribes to further filesystem events. This
// mirrors spec §4.J's startup contract: the engine must catch up on
// whatever arrived while the daemon was not running.
func (e *Engine) Drain(ctx context.Context) error {
	entries, err := os.ReadDir(e.InboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("intake: read inbox %q: %w", e.InboxDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(e.InboxDir, entry.Name())
		if err := e.Process(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// Process runs one file through the full intake state machine: OBSERVED,
// HASHED, then either DUPLICATE or POLICY_CHECK followed by ACCEPT/REJECT
// and the corresponding terminal file move. A failure to stat or hash the
// file, to look up earlier submissions, or to move an accepted file into
// the raw vault is converted into a REJECT decision with code E004 rather
// than propagated, per spec §7's propagation policy for per-file intake
// errors. A failure to append to the ledger, to write the inbox_log or
// quarantine_tickets rows, or to create the ticket's quarantine directory
// is returned to the caller.
func (e *Engine) Process(ctx context.Context, path string) error {
	if err := e.event("INBOX_DETECT", map[string]any{"path": path}); err != nil {
		return err
	}

	info, statErr := os.Stat(path)
	sum, hashErr := canon.SHA256File(path)

	if statErr != nil || hashErr != nil {
		return e.reject(ctx, path, "unknown", 0, "", CodeProcessingError)
	}
	if err := e.event("INBOX_CHECKSUM", map[string]any{"path": path, "sha256": sum}); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	size := info.Size()

	duplicate, err := e.isDuplicate(ctx, sum)
	if err != nil {
		return e.reject(ctx, path, sum, size, ext, CodeProcessingError)
	}
	if duplicate {
		return e.recordDuplicate(ctx, path, sum, size, ext)
	}

	if !e.Policy.allows(ext) {
		return e.reject(ctx, path, sum, size, ext, CodeDisallowedExtension)
	}
	if e.Policy.Rules.MaxSizeBytes > 0 && size > e.Policy.Rules.MaxSizeBytes {
		return e.reject(ctx, path, sum, size, ext, CodeOversize)
	}

	return e.accept(ctx, path, sum, size, ext)
}

// isDuplicate reports whether an InboxLogEntry with this hash and a
// terminal decision of ACCEPT or REJECT already exists.
func (e *Engine) isDuplicate(ctx context.Context, sum string) (bool, error) {
	var n int
	err := e.Store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbox_log WHERE sha256 = ? AND decision IN ('ACCEPT', 'REJECT')`,
		sum).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("intake: duplicate lookup: %w", err)
	}
	return n > 0, nil
}

func (e *Engine) recordDuplicate(ctx context.Context, path, sum string, size int64, ext string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO inbox_log (sha256, source_path, size_bytes, file_ext, policy_id, decision, observed_at)
			 VALUES (?, ?, ?, ?, ?, 'DUPLICATE', ?)`,
			sum, path, size, ext, e.Policy.PolicyID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("intake: record duplicate: %w", err)
	}
	return e.event("INBOX_DUPLICATE", map[string]any{"path": path, "sha256": sum})
}

func (e *Engine) accept(ctx context.Context, path, sum string, size int64, ext string) error {
	dest := filepath.Join(e.RawVaultDir, sum+ext)
	if err := moveFile(e.RawVaultDir, path, dest); err != nil {
		return e.reject(ctx, path, sum, size, ext, CodeProcessingError)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO inbox_log (sha256, source_path, size_bytes, file_ext, policy_id, decision, observed_at)
			 VALUES (?, ?, ?, ?, ?, 'ACCEPT', ?)`,
			sum, path, size, ext, e.Policy.PolicyID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("intake: record accept: %w", err)
	}

	if err := e.event("INBOX_ACCEPT", map[string]any{"path": path, "sha256": sum}); err != nil {
		return err
	}
	return e.event("INBOX_MOVE_RAW", map[string]any{"sha256": sum, "dest": dest})
}

func (e *Engine) reject(ctx context.Context, path, sum string, size int64, ext, code string) error {
	ticketID := mintTicketID()
	ticketDir := filepath.Join(e.QuarantineDir, ticketID)
	if err := os.MkdirAll(ticketDir, 0o700); err != nil {
		return fmt.Errorf("intake: create quarantine dir %q: %w", ticketDir, err)
	}
	dest := filepath.Join(ticketDir, filepath.Base(path))
	_ = moveFile(ticketDir, path, dest) // best effort: the file itself may already be unreadable (E004)

	now := time.Now().UTC().Format(time.RFC3339)
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quarantine_tickets (id, reason, sha256, created_at) VALUES (?, ?, ?, ?)`,
			ticketID, code, sum, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO inbox_log (sha256, source_path, size_bytes, file_ext, policy_id, decision, ticket_id, observed_at)
			 VALUES (?, ?, ?, ?, ?, 'REJECT', ?, ?)`,
			sum, path, size, ext, e.Policy.PolicyID, ticketID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("intake: record reject: %w", err)
	}

	if err := e.event("INBOX_REJECT", map[string]any{
		"path": path, "sha256": sum, "ticket_id": ticketID, "reason": code,
	}); err != nil {
		return err
	}
	return e.event("INBOX_MOVE_QUAR", map[string]any{"ticket_id": ticketID, "dest": dest})
}

func (e *Engine) event(eventType string, fields map[string]any) error {
	if e.Logger != nil {
		e.Logger.Info("intake event", slog.String("event", eventType))
	}
	if e.Ledger == nil {
		return nil
	}
	payload := map[string]any{"event": eventType}
	for k, v := range fields {
		payload[k] = v
	}
	_, err := e.Ledger.Append(payload)
	if err != nil {
		return fmt.Errorf("intake: ledger append %s: %w", eventType, err)
	}
	return nil
}

// mintTicketID produces a "T"-prefixed 8-uppercase-hex-char ticket id
// derived from a fresh random UUID, per spec §4.J.
func mintTicketID() string {
	u := uuid.New()
	return "T" + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// moveFile relocates src to dest, creating dest's parent directory first.
// os.Rename is attempted first (atomic when src and dest share a
// filesystem); if that fails (e.g. a cross-device inbox/vault mount) it
// falls back to a copy-then-remove.
func moveFile(destDir, src, dest string) error {
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("intake: create dir %q: %w", destDir, err)
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("intake: open %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("intake: create %q: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("intake: copy to %q: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("intake: close %q: %w", dest, err)
	}
	return os.Remove(src)
}

