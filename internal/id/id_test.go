package id

import (
	"strings"
	"testing"
)

func TestNewIsUniqueHex(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		v := New()
		if len(v) != 32 {
			t.Fatalf("expected 32 characters, got %d (%s)", len(v), v)
		}
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id %s", v)
		}
		seen[v] = struct{}{}
	}
}

func TestWithPrefix(t *testing.T) {
	if v := WithPrefix("job"); !strings.HasPrefix(v, "job_") || len(v) != 36 {
		t.Fatalf("unexpected prefixed id %s", v)
	}
	if v := WithPrefix(""); len(v) != 32 {
		t.Fatalf("expected bare id without prefix, got %s", v)
	}
}
