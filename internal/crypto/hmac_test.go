package crypto

import (
	"strings"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"event":"new_match"}`)

	sig1 := Sign(payload, "secret")
	sig2 := Sign(payload, "secret")
	if sig1 != sig2 {
		t.Fatal("same payload and secret should produce the same signature")
	}
	if len(sig1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig1))
	}
	if sig1 != strings.ToLower(sig1) {
		t.Fatal("signature should be lowercase hex")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte("hello")
	sig := Sign(payload, "secret")

	if !Verify(payload, "secret", sig) {
		t.Fatal("valid signature should verify")
	}
	if Verify(payload, "wrong", sig) {
		t.Fatal("wrong secret should not verify")
	}
	if Verify([]byte("tampered"), "secret", sig) {
		t.Fatal("tampered payload should not verify")
	}
	if Verify(payload, "secret", "not-hex") {
		t.Fatal("malformed signature should not verify")
	}
}

func TestSignDiffersByPayload(t *testing.T) {
	if Sign([]byte("a"), "secret") == Sign([]byte("b"), "secret") {
		t.Fatal("different payloads should produce different signatures")
	}
}

func TestNewSecret(t *testing.T) {
	s1 := NewSecret()
	s2 := NewSecret()
	if len(s1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(s1))
	}
	if s1 == s2 {
		t.Fatal("secrets should be unique")
	}
}
