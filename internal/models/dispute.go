package models

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus tracks a dispute's own sub-lifecycle. Resolving a
// dispute never moves the match status by itself.
type DisputeStatus string

const (
	DisputeOpen              DisputeStatus = "open"
	DisputeResolvedUpheld    DisputeStatus = "resolved_upheld"
	DisputeResolvedDismissed DisputeStatus = "resolved_dismissed"
)

// Resolved reports whether the status is one of the resolved_* values.
func (s DisputeStatus) Resolved() bool {
	return s == DisputeResolvedUpheld || s == DisputeResolvedDismissed
}

// Dispute is filed by one participant against a match.
type Dispute struct {
	ID         uuid.UUID     `json:"id"`
	MatchID    uuid.UUID     `json:"match_id"`
	FiledBy    uuid.UUID     `json:"filed_by"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	Resolution *string       `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
