package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval is one participant's accept/reject vote on a proposed deal.
// There is at most one row per (match, agent); the latest decision wins.
type Approval struct {
	MatchID   uuid.UUID `json:"match_id"`
	AgentID   uuid.UUID `json:"agent_id"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
