// Package canon produces the deterministic byte encoding used everywhere a
// record must be hashed or HMAC'd: the ledger's HMAC pre-image and the
// ingest engine's opaque byte columns (powers/metadata/details) both go
// through Marshal. File digests (such as the migration engine's script
// checksums) are computed over the raw file bytes by SHA256File.
//
// The canonical form is UTF-8 JSON with lexicographically sorted object
// keys and compact separators ("," and ":", no surrounding whitespace).
// Array order is preserved. Integers are emitted without a fractional
// component. The encoder never HTML-escapes '<', '>', or '&', so the byte
// sequence is stable regardless of where it is later embedded.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical byte encoding of v. v must be composed of
// strings, integers, floats, booleans, nil, slices, and string-keyed maps
// (the shapes produced by decoding YAML or JSON into interface{}, or by
// constructing a map[string]any by hand). Marshal is total over that
// domain; it only fails if v contains a value encoding/json cannot encode
// (e.g. a channel or a function), which does not occur for record data.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	// json.Encoder.Encode always appends a trailing newline; the canonical
	// form has none.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MustMarshal is Marshal for values the caller knows cannot fail to
// encode (constructed by this package's own callers, never from
// untrusted external bytes). It panics on error.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("canon: %v", err))
	}
	return b
}

// WithoutKey returns a shallow copy of m with key removed. It is used to
// compute the HMAC/hash pre-image of a record that embeds its own
// signature field (e.g. a ledger event's "mac" field).
func WithoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == key {
			continue
		}
		out[k] = v
	}
	return out
}
