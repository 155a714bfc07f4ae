package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventWildcard subscribes a webhook to every event type.
const WebhookEventWildcard = "*"

// Webhook is an agent-owned HTTP subscription for deal events,
// authenticated with an HMAC-SHA256 signature over the payload.
// Delivery auto-disables the webhook once FailureCount reaches the
// failure ceiling; the owner must re-enable it explicitly.
type Webhook struct {
	ID      uuid.UUID `json:"id"`
	AgentID uuid.UUID `json:"agent_id"`
	URL     string    `json:"url"`
	Secret  string    `json:"-"`
	// Events is the subscribed event filter: the wildcard or an
	// explicit list of event type tags.
	Events          []string   `json:"events"`
	Active          bool       `json:"active"`
	FailureCount    int        `json:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Subscribed reports whether the webhook's filter matches the event.
func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == WebhookEventWildcard || e == event {
			return true
		}
	}
	return false
}
