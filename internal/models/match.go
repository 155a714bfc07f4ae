package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the lifecycle state of a deal thread. All writes go
// through the transition table in the deal package; nothing else is
// allowed to invent a status value.
type MatchStatus string

const (
	StatusMatched     MatchStatus = "matched"
	StatusNegotiating MatchStatus = "negotiating"
	StatusProposed    MatchStatus = "proposed"
	StatusApproved    MatchStatus = "approved"
	StatusRejected    MatchStatus = "rejected"
	StatusInProgress  MatchStatus = "in_progress"
	StatusCompleted   MatchStatus = "completed"
	StatusExpired     MatchStatus = "expired"
	StatusCancelled   MatchStatus = "cancelled"
)

// Terminal reports whether the status ends the thread.
func (s MatchStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// RateRange is a closed numeric interval.
type RateRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Overlap is the scored compatibility breakdown between two profiles.
// It is persisted on the match as its overlap summary.
type Overlap struct {
	Score            int        `json:"score"`
	SharedSkills     []string   `json:"shared_skills,omitempty"`
	RateOverlap      *RateRange `json:"rate_overlap,omitempty"`
	RemoteCompatible bool       `json:"remote_compatible"`
	SameCategory     bool       `json:"same_category"`
}

// Match is the negotiation thread between two compatible profiles.
// The pair is stored with a stable ordering (ProfileA < ProfileB by
// UUID string) so the unordered pair is a natural dedup key.
type Match struct {
	ID       uuid.UUID `json:"id"`
	ProfileA uuid.UUID `json:"profile_a"`
	ProfileB uuid.UUID `json:"profile_b"`
	AgentA   uuid.UUID `json:"agent_a"`
	AgentB   uuid.UUID `json:"agent_b"`

	Overlap   Overlap     `json:"overlap"`
	Status    MatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Participant reports whether the agent owns one of the two profiles.
func (m *Match) Participant(agentID uuid.UUID) bool {
	return agentID == m.AgentA || agentID == m.AgentB
}

// Counterpart returns the other participant. The caller must have
// checked Participant first.
func (m *Match) Counterpart(agentID uuid.UUID) uuid.UUID {
	if agentID == m.AgentA {
		return m.AgentB
	}
	return m.AgentA
}

// OrderProfilePair returns the two profile ids in stable storage order.
func OrderProfilePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
