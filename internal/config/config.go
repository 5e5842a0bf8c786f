// Package config provides YAML configuration loading and validation for
// the trustint daemon: vault layout, log level, and the intake policy
// document. Unlike the registry validator in internal/validate (which
// fails fast on the first offending declarative record), daemon
// configuration aggregates every problem with errors.Join so an operator
// sees the full list of what to fix in one pass.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trustint/trustint/internal/intake"
)

// Config is the top-level configuration for the trustint daemon.
type Config struct {
	// VaultDir is the root directory holding the HMAC key, the ledger, and
	// the embedded database. Required.
	VaultDir string `yaml:"vault_dir"`

	// InboxDir is where the intake engine watches for new submissions.
	// Defaults to "<vault_dir>/inbox" when omitted.
	InboxDir string `yaml:"inbox_dir"`

	// RawVaultDir is where accepted files are stored, named
	// "<sha256><ext>". Defaults to "<vault_dir>/raw" when omitted.
	RawVaultDir string `yaml:"raw_vault_dir"`

	// QuarantineDir is the root of the per-ticket quarantine tree.
	// Defaults to "<vault_dir>/quarantine" when omitted.
	QuarantineDir string `yaml:"quarantine_dir"`

	// MigrationsDir holds the V<n>__<name>.sql schema scripts. Defaults to
	// "migrations" when omitted.
	MigrationsDir string `yaml:"migrations_dir"`

	// ConfigDir holds the declarative trusts/roles/assets/laws documents
	// consumed by ingest. Defaults to "config" when omitted.
	ConfigDir string `yaml:"config_dir"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Policy is the intake policy applied to every inbox submission.
	// Required.
	Policy intake.Policy `yaml:"policy"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.InboxDir == "" && cfg.VaultDir != "" {
		cfg.InboxDir = cfg.VaultDir + "/inbox"
	}
	if cfg.RawVaultDir == "" && cfg.VaultDir != "" {
		cfg.RawVaultDir = cfg.VaultDir + "/raw"
	}
	if cfg.QuarantineDir == "" && cfg.VaultDir != "" {
		cfg.QuarantineDir = cfg.VaultDir + "/quarantine"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = "config"
	}
}

func validateConfig(cfg *Config) error {
	var errs []error

	if cfg.VaultDir == "" {
		errs = append(errs, errors.New("vault_dir is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Policy.PolicyID == "" {
		errs = append(errs, errors.New("policy.policy_id is required"))
	}
	if len(cfg.Policy.Rules.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("policy.rules.allowed_extensions must be non-empty"))
	}
	if cfg.Policy.Rules.MaxSizeBytes < 0 {
		errs = append(errs, errors.New("policy.rules.max_size_bytes must be non-negative"))
	}

	return errors.Join(errs...)
}
