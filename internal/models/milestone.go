package models

import (
	"time"

	"github.com/google/uuid"
)

// MilestoneStatus tracks a milestone independently of the match status.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneBlocked    MilestoneStatus = "blocked"
)

// Valid reports whether the status is a known value.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneInProgress, MilestoneCompleted, MilestoneBlocked:
		return true
	}
	return false
}

// Milestone is an informational sub-record of a match. Its status never
// forces a match transition.
type Milestone struct {
	ID          uuid.UUID       `json:"id"`
	MatchID     uuid.UUID       `json:"match_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Status      MilestoneStatus `json:"status"`
	Position    int             `json:"position"`
	CreatedBy   uuid.UUID       `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
