package dealmesh

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"testing"
	"time"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "topsecret"
	body := []byte(`{"event":"deal_approved"}`)

	if !VerifySignature(body, secret, sign(secret, body)) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(body, "wrong", sign(secret, body)) {
		t.Error("signature accepted with wrong secret")
	}
	if VerifySignature([]byte(`{"event":"tampered"}`), secret, sign(secret, body)) {
		t.Error("signature accepted for tampered body")
	}
	if VerifySignature(body, secret, "not-hex") {
		t.Error("malformed signature accepted")
	}
	if VerifySignature(body, secret, "") {
		t.Error("empty signature accepted")
	}
}

func TestParseWebhook(t *testing.T) {
	secret := "topsecret"
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event":"new_match","agent_id":"a1b2","summary":"matched with bob","timestamp":"` +
		ts.Format(time.RFC3339) + `"}`)

	req := httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sign(secret, body))

	event, err := ParseWebhook(req, secret)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event.Event != "new_match" {
		t.Errorf("event = %q, want new_match", event.Event)
	}
	if event.Summary != "matched with bob" {
		t.Errorf("summary = %q", event.Summary)
	}
	if !event.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", event.Timestamp, ts)
	}
	if event.MatchID != nil {
		t.Errorf("match_id = %v, want nil", event.MatchID)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	body := []byte(`{"event":"new_match"}`)
	req := httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sign("other", body))

	if _, err := ParseWebhook(req, "topsecret"); err == nil {
		t.Error("expected signature error")
	}
}
