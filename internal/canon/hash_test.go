package canon_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trustint/trustint/internal/canon"
)

func TestSHA256Bytes_KnownVector(t *testing.T) {
	// SHA-256("") per FIPS 180-4 test vectors.
	got := canon.SHA256Bytes([]byte(""))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("SHA256Bytes([]byte{}) = %q, want %q", got, want)
	}
}

func TestSHA256File_MatchesSHA256Bytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	data := strings.Repeat("trustint-", 4096) // exceed one chunk boundary
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := canon.SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File: %v", err)
	}
	want := canon.SHA256Bytes([]byte(data))
	if got != want {
		t.Errorf("SHA256File = %q, want %q", got, want)
	}
	if len(got) != 64 {
		t.Errorf("digest length = %d, want 64", len(got))
	}
}

func TestSHA256File_MissingFile(t *testing.T) {
	_, err := canon.SHA256File(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
