package auth

import (
	"encoding/hex"
	"testing"
)

func TestHashOTPHex_consistency(t *testing.T) {
	phone, code, salt := "+491511234567", "123456", "test-salt"
	h1 := hashOTPHex(phone, code, salt)
	h2 := hashOTPHex(phone, code, salt)
	if h1 != h2 {
		t.Errorf("hash should be deterministic: %q != %q", h1, h2)
	}
	decoded, err := hex.DecodeString(h1)
	if err != nil {
		t.Fatalf("hash should be valid hex: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("SHA-256 hash should be 32 bytes, got %d", len(decoded))
	}
}

func TestHashOTPHex_differentInputsDifferentHash(t *testing.T) {
	salt := "salt"
	h1 := hashOTPHex("+491511234567", "123456", salt)
	h2 := hashOTPHex("+491511234568", "123456", salt)
	h3 := hashOTPHex("+491511234567", "654321", salt)
	h4 := hashOTPHex("+491511234567", "123456", "other-salt")
	if h1 == h2 || h1 == h3 || h1 == h4 {
		t.Error("different inputs should produce different hashes")
	}
}

func TestGenerateCode(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		code, err := generateCode(n)
		if err != nil {
			t.Fatalf("generateCode(%d): %v", n, err)
		}
		if len(code) != n {
			t.Errorf("generateCode(%d) returned %d characters", n, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Errorf("generateCode(%d) produced non-digit %q", n, r)
			}
		}
	}
}
