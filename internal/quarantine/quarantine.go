// Package quarantine implements the registry of tickets minted by the
// intake state machine for rejected files: listing open tickets, showing
// one ticket joined with its originating inbox log entry, and resolving a
// ticket exactly once.
package quarantine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/store"
)

// ErrAlreadyResolved is returned by Resolve when the ticket has a non-null
// resolved_at already; resolution is irrevocable per spec §4.K.
var ErrAlreadyResolved = errors.New("quarantine: ticket already resolved")

// ErrNotFound is returned when the ticket id does not exist.
var ErrNotFound = errors.New("quarantine: ticket not found")

// Ticket mirrors one row of quarantine_tickets.
type Ticket struct {
	ID         string
	Reason     string
	SHA256     string
	CreatedAt  string
	ResolvedAt sql.NullString
	Note       sql.NullString
}

// Detail is a ticket joined with the InboxLogEntry that produced it.
type Detail struct {
	Ticket
	SourcePath string
	FileExt    string
	SizeBytes  int64
	PolicyID   string
}

// ListOpen returns every unresolved ticket, ordered by created_at
// ascending (oldest first).
func ListOpen(ctx context.Context, s *store.Store) ([]Ticket, error) {
	rows, err := s.DB().QueryContext(ctx,
		`SELECT id, reason, sha256, created_at, resolved_at, note
		 FROM quarantine_tickets WHERE resolved_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("quarantine: list open: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Reason, &t.SHA256, &t.CreatedAt, &t.ResolvedAt, &t.Note); err != nil {
			return nil, fmt.Errorf("quarantine: scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Show returns ticketID joined with the inbox_log row that created it.
func Show(ctx context.Context, s *store.Store, ticketID string) (Detail, error) {
	var d Detail
	err := s.DB().QueryRowContext(ctx,
		`SELECT qt.id, qt.reason, qt.sha256, qt.created_at, qt.resolved_at, qt.note,
		        il.source_path, il.file_ext, il.size_bytes, il.policy_id
		 FROM quarantine_tickets qt
		 JOIN inbox_log il ON il.ticket_id = qt.id
		 WHERE qt.id = ?`, ticketID).Scan(
		&d.ID, &d.Reason, &d.SHA256, &d.CreatedAt, &d.ResolvedAt, &d.Note,
		&d.SourcePath, &d.FileExt, &d.SizeBytes, &d.PolicyID)
	if errors.Is(err, sql.ErrNoRows) {
		return Detail{}, ErrNotFound
	}
	if err != nil {
		return Detail{}, fmt.Errorf("quarantine: show %q: %w", ticketID, err)
	}
	return d, nil
}

// Resolve closes ticketID, recording note and emitting a QUARANTINE_RESOLVE
// ledger event. It fails with ErrNotFound if the ticket does not exist and
// ErrAlreadyResolved if it was already closed; resolution is irrevocable.
func Resolve(ctx context.Context, s *store.Store, log *ledger.Logger, ticketID, note string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var resolvedAt sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT resolved_at FROM quarantine_tickets WHERE id = ?`, ticketID).Scan(&resolvedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("quarantine: lookup %q: %w", ticketID, err)
		}
		if resolvedAt.Valid {
			return ErrAlreadyResolved
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE quarantine_tickets SET resolved_at = ?, note = ? WHERE id = ?`,
			now, note, ticketID)
		if err != nil {
			return fmt.Errorf("quarantine: resolve %q: %w", ticketID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if log == nil {
		return nil
	}
	if _, err := log.Append(map[string]any{
		"event":     "QUARANTINE_RESOLVE",
		"ticket_id": ticketID,
		"note":      note,
	}); err != nil {
		return fmt.Errorf("quarantine: ledger append: %w", err)
	}
	return nil
}
