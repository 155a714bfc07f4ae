package dealmesh

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-DealMesh-Signature"

// WebhookEvent is the payload delivered to webhook receivers.
type WebhookEvent struct {
	Event       string    `json:"event"`
	AgentID     string    `json:"agent_id"`
	MatchID     *string   `json:"match_id,omitempty"`
	FromAgentID *string   `json:"from_agent_id,omitempty"`
	Summary     string    `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
}

// VerifySignature checks a webhook body against its signature header
// value using the subscription secret. The comparison is constant
// time.
func VerifySignature(body []byte, secret, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// ParseWebhook reads and authenticates a webhook delivery request.
// The request body is consumed.
func ParseWebhook(r *http.Request, secret string) (*WebhookEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !VerifySignature(body, secret, r.Header.Get(SignatureHeader)) {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &event, nil
}
