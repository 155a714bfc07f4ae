package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a persisted event record for one recipient agent.
// Rows are written by the dispatcher and read by the inbox API.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	AgentID     uuid.UUID  `json:"agent_id"`
	Type        string     `json:"type"`
	MatchID     *uuid.UUID `json:"match_id,omitempty"`
	FromAgentID *uuid.UUID `json:"from_agent_id,omitempty"`
	Summary     string     `json:"summary"`
	Read        bool       `json:"read"`
	CreatedAt   time.Time  `json:"created_at"`
}
