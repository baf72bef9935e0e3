package auth

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	full, prefix, hash, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if !strings.HasPrefix(full, "sprdd_pk_") {
		t.Errorf("key %q missing sprdd_pk_ prefix", full)
	}
	if len(full) != keyLength {
		t.Errorf("key length = %d, want %d", len(full), keyLength)
	}
	if prefix != full[:16] {
		t.Errorf("prefix = %q, want first 16 chars %q", prefix, full[:16])
	}
	if hash != HashKey(full) {
		t.Error("returned hash does not match HashKey(full)")
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(hash))
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		full, _, _, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		if seen[full] {
			t.Fatalf("duplicate key generated: %s", full)
		}
		seen[full] = true
	}
}

func TestValidFormat(t *testing.T) {
	full, _, _, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cases := []struct {
		name string
		key  string
		want bool
	}{
		{"generated key", full, true},
		{"empty", "", false},
		{"wrong prefix", "sprdd_sk_" + strings.Repeat("a", 64), false},
		{"too short", "sprdd_pk_abc", false},
		{"too long", full + "ff", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidFormat(tc.key); got != tc.want {
				t.Errorf("ValidFormat(%q) = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}
