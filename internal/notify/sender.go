package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// Delivery headers. The signature is an HMAC-SHA256 of the exact
// request body, hex encoded, computed with the webhook's secret.
const (
	HeaderEvent     = "X-DealMesh-Event"
	HeaderSignature = "X-DealMesh-Signature"
	HeaderDelivery  = "X-DealMesh-Delivery"
)

// Payload is the webhook request body.
type Payload struct {
	Event       string     `json:"event"`
	AgentID     uuid.UUID  `json:"agent_id"`
	MatchID     *uuid.UUID `json:"match_id,omitempty"`
	FromAgentID *uuid.UUID `json:"from_agent_id,omitempty"`
	Summary     string     `json:"summary"`
	Timestamp   time.Time  `json:"timestamp"`
}

// NewPayload builds the wire payload for a notification.
func NewPayload(n *models.Notification) Payload {
	return Payload{
		Event:       n.Type,
		AgentID:     n.AgentID,
		MatchID:     n.MatchID,
		FromAgentID: n.FromAgentID,
		Summary:     n.Summary,
		Timestamp:   n.CreatedAt.UTC(),
	}
}

// Sender performs single-attempt webhook deliveries.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender whose deliveries time out after timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{client: &http.Client{Timeout: timeout}}
}

// Deliver signs and posts the payload to the webhook URL. One attempt,
// no retries; any transport error or non-2xx response is a failure.
func (s *Sender) Deliver(ctx context.Context, hook *models.Webhook, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, payload.Event)
	req.Header.Set(HeaderSignature, crypto.Sign(body, hook.Secret))
	req.Header.Set(HeaderDelivery, ulid.Make().String())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
