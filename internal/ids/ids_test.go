package ids

import (
	"strings"
	"testing"
)

func TestNewInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewInviteCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != InviteCodeLength {
			t.Fatalf("expected length %d, got %q", InviteCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(inviteAlphabet, r) {
				t.Fatalf("unexpected rune %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Fatalf("expected mostly distinct codes, got %d distinct of 200", len(seen))
	}
}

func TestNewIDsAreDistinct(t *testing.T) {
	if NewID() == NewID() {
		t.Fatal("expected distinct UUIDs")
	}
	if NewConnID() == NewConnID() {
		t.Fatal("expected distinct connection ids")
	}
}
