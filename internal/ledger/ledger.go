// Package ledger implements the append-only, hash-chained, HMAC-authenticated
// provenance event log (spec §4.D/§4.E). Every state-changing action in the
// daemon is recorded as one line of the ledger; the chain makes any later
// tampering with a line, or any reordering of lines, detectable by Verify.
//
// # Chain construction
//
// Append enriches the caller's event fields with "ts" (RFC3339 UTC, trailing
// "Z") and "prev" (the previous line's "mac", or "" for the first line), then
// computes:
//
//	mac = HMAC-SHA256(key, canon(event ∪ {ts, prev}))
//
// using the canonical encoding from package canon as the sole HMAC
// pre-image, and appends the event with "mac" added as one JSON line.
//
// # Append semantics
//
// The underlying file is opened with os.O_APPEND | os.O_CREATE | os.O_WRONLY
// so the OS serializes each write; a mutex additionally serializes Append
// calls within one process to keep the sequence of prev/mac values
// consistent. This mirrors the append-only audit log pattern the rest of
// this codebase uses elsewhere for tamper-evident logging, generalized here
// to HMAC authentication and arbitrary caller-supplied event fields instead
// of a fixed seq/payload shape.
package ledger

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/trustint/trustint/internal/canon"
)

// scanBufferCap bounds the maximum single-line size Logger and Verify will
// accept; generously large for the small user-field payloads this ledger
// carries, while still bounding worst-case memory use.
const scanBufferCap = 10 * 1024 * 1024

// Logger is an append-only HMAC-chained event log writer. Create one with
// Open; do not copy a Logger after first use.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	key     []byte
	prevMAC string
}

// Open opens (or creates) the ledger file at path, verifying the existing
// chain in full (using key) to restore the current prev value before
// allowing further appends. Returns an error if the file cannot be opened,
// or if the existing chain fails verification — a ledger with a broken
// chain must not be extended silently.
func Open(path string, key []byte) (*Logger, error) {
	prevMAC := ""
	if _, err := os.Stat(path); err == nil {
		_, last, verr := verifyChain(path, key)
		if verr != nil {
			return nil, fmt.Errorf("ledger: restoring chain state from %q: %w", path, verr)
		}
		prevMAC = last
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("ledger: stat %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ledger: open for append %q: %w", path, err)
	}

	return &Logger{file: f, key: key, prevMAC: prevMAC}, nil
}

// Append enriches event with ts and prev, computes its HMAC, and appends it
// to the ledger as one JSON line. event must not already contain "ts",
// "prev", or "mac" keys; Append owns those fields. Returns the full written
// object, including the computed "mac", for callers that want to log or
// display it without re-reading the file.
//
// Any failure before the write is returned to the caller and leaves no
// line. A failed write is returned as well; Append never retries or
// reconciles it, so a partially written line may remain for Verify to flag.
func (l *Logger) Append(event map[string]any) (map[string]any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	enriched := make(map[string]any, len(event)+2)
	for k, v := range event {
		enriched[k] = v
	}
	enriched["ts"] = time.Now().UTC().Format(time.RFC3339)
	enriched["prev"] = l.prevMAC

	preimage, err := canon.Marshal(enriched)
	if err != nil {
		return nil, fmt.Errorf("ledger: canonicalize event: %w", err)
	}
	mac := computeMAC(l.key, preimage)

	final := make(map[string]any, len(enriched)+1)
	for k, v := range enriched {
		final[k] = v
	}
	final["mac"] = mac

	line, err := json.Marshal(final)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal event: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return nil, fmt.Errorf("ledger: write event: %w", err)
	}

	l.prevMAC = mac
	return final, nil
}

// Close flushes OS-level buffers and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("ledger: sync: %w", err)
	}
	return l.file.Close()
}

// computeMAC returns the lowercase hex HMAC-SHA256 of data under key.
func computeMAC(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// newScanner builds a bufio.Scanner over f sized for ledger lines.
func newScanner(f *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, scanBufferCap)
	return scanner
}

// verifyChain is the shared implementation behind Open (chain restoration)
// and Verify (the offline audit). It returns the count of verified lines,
// the mac of the last verified line ("" if the ledger is empty), and the
// first ChainError encountered, if any.
func verifyChain(path string, key []byte) (count int, lastMAC string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("ledger: open %q: %w", path, err)
	}
	defer f.Close()

	scanner := newScanner(f)
	prevMAC := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var obj map[string]any
		if jerr := json.Unmarshal(raw, &obj); jerr != nil {
			return 0, "", &ChainError{Line: lineNo, Reason: ReasonJSONParse}
		}

		mac, ok := obj["mac"].(string)
		if !ok || mac == "" {
			return 0, "", &ChainError{Line: lineNo, Reason: ReasonMissingMAC}
		}

		prev, _ := obj["prev"].(string)
		if prev != prevMAC {
			return 0, "", &ChainError{Line: lineNo, Reason: ReasonPrevMismatch}
		}

		preimage, cerr := canon.Marshal(canon.WithoutKey(obj, "mac"))
		if cerr != nil {
			return 0, "", fmt.Errorf("ledger: canonicalize line %d: %w", lineNo, cerr)
		}
		if computeMAC(key, preimage) != mac {
			return 0, "", &ChainError{Line: lineNo, Reason: ReasonMACMismatch}
		}

		prevMAC = mac
		count++
	}
	if serr := scanner.Err(); serr != nil {
		return 0, "", fmt.Errorf("ledger: scan %q: %w", path, serr)
	}
	return count, prevMAC, nil
}
