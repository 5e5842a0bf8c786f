// Package daemon wires together the trustint components — the HMAC key,
// the provenance ledger, the embedded store, the migration engine, the
// ingest engine, and the intake state machine — into the single orchestrator
// the cmd/trustintd entrypoint drives. The component-wiring shape follows
// this codebase's agent orchestrator (without its functional options),
// simplified to the single-process, single-threaded scheduling model spec
// §5 requires: there are no background goroutines here, only an explicit
// Bootstrap (which drains the inbox) and per-file Observe calls the caller
// invokes in sequence.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trustint/trustint/internal/config"
	"github.com/trustint/trustint/internal/docs"
	"github.com/trustint/trustint/internal/ingest"
	"github.com/trustint/trustint/internal/intake"
	"github.com/trustint/trustint/internal/keys"
	"github.com/trustint/trustint/internal/ledger"
	"github.com/trustint/trustint/internal/migrate"
	"github.com/trustint/trustint/internal/store"
	"github.com/trustint/trustint/internal/validate"
)

// Daemon is the central orchestrator. Construct one with New, then call
// Bootstrap to bring the store to the latest schema, ingest the
// declarative documents, and drain the inbox, in that order. Stop releases
// the ledger and store handles.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	Ledger *ledger.Logger
	Store  *store.Store
	Intake *intake.Engine

	mu          sync.RWMutex
	startTime   time.Time
	lastEventAt time.Time
	running     bool
}

// New loads the HMAC key, opens the ledger and the store, and constructs
// the intake engine, but does not yet run migrations or ingest — call
// Bootstrap for that. keyPath is where the HMAC key is read from or
// persisted to if absent (spec §6: vault/.hmac_key).
func New(cfg *config.Config, logger *slog.Logger, keyPath string) (*Daemon, error) {
	keyResult, err := keys.Load(keyPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load key: %w", err)
	}
	logger.Info("hmac key loaded", slog.String("status", keyResult.Status))

	ledgerPath := cfg.VaultDir + "/events.jsonl"
	l, err := ledger.Open(ledgerPath, keyResult.Key)
	if err != nil {
		return nil, fmt.Errorf("daemon: open ledger: %w", err)
	}

	s, err := store.Open(cfg.VaultDir + "/trustint.db")
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("daemon: open store: %w", err)
	}

	engine := &intake.Engine{
		InboxDir:      cfg.InboxDir,
		RawVaultDir:   cfg.RawVaultDir,
		QuarantineDir: cfg.QuarantineDir,
		Policy:        cfg.Policy,
		Store:         s,
		Ledger:        l,
		Logger:        logger,
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
		Ledger: l,
		Store:  s,
		Intake: engine,
	}, nil
}

// Bootstrap brings the store up to the latest schema version, loads and
// validates the declarative documents from cfg.ConfigDir, ingests them, and
// drains the inbox of any files that arrived while the daemon was not
// running. It marks the daemon running on success.
func (d *Daemon) Bootstrap(ctx context.Context) error {
	d.mu.Lock()
	d.startTime = time.Now()
	d.mu.Unlock()

	if _, err := migrate.Run(ctx, d.Store, d.Ledger, d.cfg.MigrationsDir, 0); err != nil {
		return fmt.Errorf("daemon: migrate: %w", err)
	}

	documents, err := docs.Load(d.cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("daemon: load documents: %w", err)
	}
	if err := validate.All(documents); err != nil {
		return fmt.Errorf("daemon: validate: %w", err)
	}
	counters, err := ingest.Run(ctx, d.Store, d.Ledger, documents)
	if err != nil {
		return fmt.Errorf("daemon: ingest: %w", err)
	}
	d.logger.Info("ingest complete",
		slog.Int("trusts", counters.Trusts),
		slog.Int("roles", counters.Roles),
		slog.Int("assets", counters.Assets),
		slog.Int("obligations", counters.Obligations),
	)

	if err := d.Intake.Drain(ctx); err != nil {
		return fmt.Errorf("daemon: drain inbox: %w", err)
	}

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	return nil
}

// Observe runs a single inbox file through the intake state machine and
// records its observation time for Health reporting.
func (d *Daemon) Observe(ctx context.Context, path string) error {
	if err := d.Intake.Process(ctx, path); err != nil {
		return err
	}
	d.mu.Lock()
	d.lastEventAt = time.Now().UTC()
	d.mu.Unlock()
	return nil
}

// Stop closes the ledger and the store. It is safe to call once after
// Bootstrap; calling it without a prior Bootstrap still releases the
// handles opened by New.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	var errs []error
	if err := d.Ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("daemon: close ledger: %w", err))
	}
	if err := d.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("daemon: close store: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("daemon: stop: %v", errs)
}

// Health is a point-in-time status snapshot. No HTTP server exposes it;
// spec's non-goals exclude network APIs, so callers (tests, a future CLI
// subcommand) read it directly.
type Health struct {
	Running     bool    `json:"running"`
	UptimeS     float64 `json:"uptime_s"`
	LastEventAt string  `json:"last_event_at,omitempty"`
}

func (d *Daemon) Status() Health {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h := Health{Running: d.running}
	if !d.startTime.IsZero() {
		h.UptimeS = time.Since(d.startTime).Seconds()
	}
	if !d.lastEventAt.IsZero() {
		h.LastEventAt = d.lastEventAt.Format(time.RFC3339)
	}
	return h
}
