package ledger

import "fmt"

// Reason codes reported by ChainError, matching the ledger's observable
// verification contract (spec §4.E).
const (
	ReasonJSONParse    = "JSON_PARSE"
	ReasonMissingMAC   = "MISSING_MAC"
	ReasonPrevMismatch = "PREV_MISMATCH"
	ReasonMACMismatch  = "MAC_MISMATCH"
)

// ChainError reports the first line at which ledger verification failed,
// and why. A rotated or wrong HMAC key surfaces as ReasonMACMismatch, the
// same as a genuinely tampered line — the verifier cannot and does not try
// to distinguish the two.
type ChainError struct {
	Line   int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger: line %d: %s", e.Line, e.Reason)
}

// Verify replays the ledger at path under key, checking every line against
// invariant 5 (prev linkage and MAC correctness). It returns the count of
// verified events on success. Blank lines are tolerated and skipped without
// counting. On the first broken line it returns a *ChainError; any other
// error (the file is missing, unreadable, or truncated mid-read) is
// returned as a wrapped I/O error, not a *ChainError.
func Verify(path string, key []byte) (int, error) {
	count, _, err := verifyChain(path, key)
	return count, err
}
