package models

import (
	"time"

	"github.com/google/uuid"
)

// Side indicates whether a profile offers or seeks work.
type Side string

const (
	SideOffering Side = "offering"
	SideSeeking  Side = "seeking"
)

// Valid reports whether the side is a known value.
func (s Side) Valid() bool {
	return s == SideOffering || s == SideSeeking
}

// Opposite returns the counterpart side.
func (s Side) Opposite() Side {
	if s == SideOffering {
		return SideSeeking
	}
	return SideOffering
}

// RemotePref is a profile's work location preference. The empty string
// means unspecified, which is compatible with everything.
type RemotePref string

const (
	RemoteRemote RemotePref = "remote"
	RemoteOnsite RemotePref = "onsite"
	RemoteHybrid RemotePref = "hybrid"
)

// Valid reports whether the preference is a known value or unspecified.
func (r RemotePref) Valid() bool {
	switch r {
	case RemoteRemote, RemoteOnsite, RemoteHybrid, "":
		return true
	}
	return false
}

// Profile is one agent's listing (offering or seeking) within a category.
// Profiles are deactivated on withdrawal or expiry, never hard-deleted.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	AgentID  uuid.UUID `json:"agent_id"`
	Side     Side      `json:"side"`
	Category string    `json:"category"`

	Skills   []string   `json:"skills,omitempty"`
	RateMin  *float64   `json:"rate_min,omitempty"`
	RateMax  *float64   `json:"rate_max,omitempty"`
	Currency string     `json:"currency,omitempty"`
	Remote   RemotePref `json:"remote,omitempty"`

	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HasRate reports whether the profile constrains its rate at all.
func (p *Profile) HasRate() bool {
	return p.RateMin != nil || p.RateMax != nil
}
