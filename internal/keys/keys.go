// Package keys resolves the HMAC key material used by the provenance
// ledger (package ledger). Resolution tries, in order: the
// TRUSTINT_HMAC_KEY environment variable, a key file (by default
// vault/.hmac_key), and finally generates and persists a fresh key.
//
// The returned status string is part of the observable contract: it
// names the provenance (env or file path) and encoding (hex, base64url,
// binary) the key was resolved from, and is surfaced by the ledger
// verifier and any health-check tooling built on this package.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// EnvKey is the environment variable carrying the key material
	// directly (hex or base64url encoded).
	EnvKey = "TRUSTINT_HMAC_KEY"
	// EnvKeyFile overrides the default key file path.
	EnvKeyFile = "TRUSTINT_HMAC_KEY_FILE"

	// DefaultKeyPath is used when EnvKeyFile is unset and Load is given an
	// empty path.
	DefaultKeyPath = "vault/.hmac_key"

	// MinKeyLen is the minimum accepted key length; shorter keys fail.
	MinKeyLen = 16
	// RecommendedKeyLen is the key length that produces a clean pass with
	// no warning.
	RecommendedKeyLen = 32
)

var (
	hexPattern      = regexp.MustCompile(`^[0-9A-Fa-f]+$`)
	base64urlCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Result is the outcome of a successful or failed key resolution.
type Result struct {
	Key    []byte
	Status string
}

// Load resolves the HMAC key using the precedence described in the
// package doc comment. defaultPath is used when TRUSTINT_HMAC_KEY_FILE is
// unset and is typically "vault/.hmac_key" relative to the daemon's
// working directory or vault root.
//
// Load returns a non-nil error only for a fatal resolution failure
// (malformed env value, a resolved key shorter than MinKeyLen, a key file
// that exists but cannot be read, or a failure to generate or persist a
// new key). The
// returned Result.Status is populated even on error, carrying a
// human-readable reason prefixed "FAIL".
func Load(defaultPath string) (Result, error) {
	if raw := os.Getenv(EnvKey); raw != "" {
		key, encoding, err := decodeEnvValue(raw)
		if err != nil {
			return Result{Status: fmt.Sprintf("FAIL: invalid format for %s: %v", EnvKey, err)},
				fmt.Errorf("keys: %s: invalid format: %w", EnvKey, err)
		}
		return finish(key, fmt.Sprintf("%s (env, %s)", EnvKey, encoding))
	}

	path := defaultPath
	if p := os.Getenv(EnvKeyFile); p != "" {
		path = p
	}
	if path == "" {
		path = DefaultKeyPath
	}

	if data, err := os.ReadFile(path); err == nil {
		key, encoding := decodeFileContent(data)
		return finish(key, fmt.Sprintf("%s (%s)", path, encoding))
	} else if !os.IsNotExist(err) {
		return Result{Status: fmt.Sprintf("FAIL: cannot read %s: %v", path, err)},
			fmt.Errorf("keys: read %q: %w", path, err)
	}

	key := make([]byte, RecommendedKeyLen)
	if _, err := rand.Read(key); err != nil {
		return Result{Status: "FAIL: cannot generate key: " + err.Error()},
			fmt.Errorf("keys: generate: %w", err)
	}
	if err := persist(path, key); err != nil {
		return Result{Status: "FAIL: cannot persist generated key: " + err.Error()}, err
	}
	return Result{Key: key, Status: fmt.Sprintf("PASS: new %d-byte key generated at %s", RecommendedKeyLen, path)}, nil
}

// decodeEnvValue decodes the TRUSTINT_HMAC_KEY value per §4.C: a 64-char
// all-hex string is hex-decoded; anything else is treated as base64url
// (padded to a multiple of 4 before decoding).
func decodeEnvValue(raw string) ([]byte, string, error) {
	if len(raw) == 64 && hexPattern.MatchString(raw) {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, "", err
		}
		return key, "hex", nil
	}
	key, err := decodeBase64URL(raw)
	if err != nil {
		return nil, "", err
	}
	return key, "base64url", nil
}

// decodeFileContent classifies and decodes the contents of the key file
// per §4.C: hex-charset text decodes as hex, base64url-charset text
// decodes as base64url, and anything else (including content that is not
// valid UTF-8) is used as a raw binary key. Hex is checked first because
// the hex alphabet is a strict subset of the base64url alphabet — a
// hex-encoded key would otherwise also match the base64url branch and
// decode to the wrong bytes.
func decodeFileContent(data []byte) ([]byte, string) {
	text := strings.TrimSpace(string(data))
	if utf8.Valid(data) && text != "" {
		if hexPattern.MatchString(text) && len(text)%2 == 0 {
			if key, err := hex.DecodeString(text); err == nil {
				return key, "hex"
			}
		}
		if base64urlCharset.MatchString(text) {
			if key, err := decodeBase64URL(text); err == nil {
				return key, "base64url"
			}
		}
	}
	return data, "binary"
}

// decodeBase64URL decodes s as unpadded or padded base64url, adding
// padding up to the next multiple of 4 when absent.
func decodeBase64URL(s string) ([]byte, error) {
	if pad := (4 - len(s)%4) % 4; pad != 0 {
		s += strings.Repeat("=", pad)
	}
	return base64.URLEncoding.DecodeString(s)
}

// persist writes key to path, base64url (no padding) encoded, creating
// parent directories and restricting permissions to owner read/write
// where the host OS supports it.
func persist(path string, key []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keys: mkdir %q: %w", dir, err)
		}
	}
	encoded := base64.RawURLEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("keys: write %q: %w", path, err)
	}
	return nil
}

// finish applies the length policy (§4.C) to a resolved key and builds
// the final Result.
func finish(key []byte, provenance string) (Result, error) {
	switch {
	case len(key) < MinKeyLen:
		status := fmt.Sprintf("FAIL: key from %s is %d bytes, shorter than the minimum %d", provenance, len(key), MinKeyLen)
		return Result{Status: status}, fmt.Errorf("keys: %s", status)
	case len(key) == RecommendedKeyLen:
		return Result{Key: key, Status: fmt.Sprintf("PASS: loaded key from %s", provenance)}, nil
	default:
		status := fmt.Sprintf("WARN: key from %s is %d bytes, not the recommended %d", provenance, len(key), RecommendedKeyLen)
		return Result{Key: key, Status: status}, nil
	}
}
