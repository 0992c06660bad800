package crypto

import (
	"encoding/hex"
	"strings"
	"testing"
)

func testKey() string {
	return hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestSealOpenRoundtrip(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	original := `{"token":"xyz","authenticated":true}`
	sealed, err := s.Seal(original)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == original {
		t.Fatal("sealed value should differ from plaintext")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != original {
		t.Errorf("roundtrip failed: got %q, want %q", opened, original)
	}
}

func TestSealNonceVaries(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	a, err := s.Seal("same input")
	if err != nil {
		t.Fatalf("Seal 1: %v", err)
	}
	b, err := s.Seal("same input")
	if err != nil {
		t.Fatalf("Seal 2: %v", err)
	}
	if a == b {
		t.Error("two seals of the same plaintext should produce different ciphertexts")
	}
}

func TestNilSealerPassthrough(t *testing.T) {
	var s *Sealer

	text := `{"token":"abc"}`
	sealed, err := s.Seal(text)
	if err != nil {
		t.Fatalf("nil Seal: %v", err)
	}
	if sealed != text {
		t.Errorf("nil Seal should return plaintext unchanged, got %q", sealed)
	}

	opened, err := s.Open(text)
	if err != nil {
		t.Fatalf("nil Open: %v", err)
	}
	if opened != text {
		t.Errorf("nil Open should return input unchanged, got %q", opened)
	}
}

func TestEmptyKeyReturnsNil(t *testing.T) {
	s, err := NewSealer("")
	if err != nil {
		t.Fatalf("NewSealer with empty key: %v", err)
	}
	if s != nil {
		t.Error("NewSealer with empty key should return nil")
	}
}

func TestInvalidKey(t *testing.T) {
	short := hex.EncodeToString([]byte("0123456789abcdef"))
	_, err := NewSealer(short)
	if err == nil {
		t.Error("expected error for 16-byte key")
	}
	if err != nil && !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("error should mention 32 bytes, got: %v", err)
	}

	if _, err := NewSealer("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestOpenInvalidData(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	if _, err := s.Open("!!!not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := s.Open("YQ=="); err == nil {
		t.Error("expected error for too-short ciphertext")
	}

	sealed, _ := s.Seal("hello")
	tampered := []byte(sealed)
	if tampered[len(tampered)/2] == 'A' {
		tampered[len(tampered)/2] = 'B'
	} else {
		tampered[len(tampered)/2] = 'A'
	}
	if _, err := s.Open(string(tampered)); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}
