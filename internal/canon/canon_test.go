package canon_test

import (
	"testing"

	"github.com/trustint/trustint/internal/canon"
)

func TestMarshal_SortsKeysAndCompacts(t *testing.T) {
	v := map[string]any{
		"b": 1,
		"a": "x",
		"c": []any{3, 2, 1},
	}
	got, err := canon.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":"x","b":1,"c":[3,2,1]}`
	if string(got) != want {
		t.Errorf("Marshal = %q, want %q", got, want)
	}
}

func TestMarshal_IntegerNoFraction(t *testing.T) {
	got, err := canon.Marshal(map[string]any{"n": 42})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"n":42}` {
		t.Errorf("Marshal = %q, want integer without fraction", got)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := canon.Marshal(map[string]any{"s": "<a>&b</a>"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"s":"<a>&b</a>"}`
	if string(got) != want {
		t.Errorf("Marshal = %q, want %q", got, want)
	}
}

func TestMarshal_NestedMapsSorted(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"z": 1, "a": 2},
	}
	got, err := canon.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"outer":{"a":2,"z":1}}`
	if string(got) != want {
		t.Errorf("Marshal = %q, want %q", got, want)
	}
}

func TestWithoutKey(t *testing.T) {
	m := map[string]any{"a": 1, "b": 2, "mac": "deadbeef"}
	out := canon.WithoutKey(m, "mac")
	if _, ok := out["mac"]; ok {
		t.Errorf("WithoutKey retained %q", "mac")
	}
	if len(out) != 2 {
		t.Errorf("WithoutKey len = %d, want 2", len(out))
	}
	// Original map must be untouched.
	if _, ok := m["mac"]; !ok {
		t.Errorf("WithoutKey mutated the original map")
	}
}
