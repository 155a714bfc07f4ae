package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a negotiation transcript entry.
type MessageType string

const (
	MessageNegotiation MessageType = "negotiation"
	MessageProposal    MessageType = "proposal"
	MessageSystem      MessageType = "system"
)

// Valid reports whether the type is a known value.
func (t MessageType) Valid() bool {
	switch t {
	case MessageNegotiation, MessageProposal, MessageSystem:
		return true
	}
	return false
}

// Message is one append-only entry in a match's negotiation transcript.
// A nil SenderID is the system sentinel. Content is opaque to the
// engine; ProposedTerms is an opaque key/value map carried verbatim.
type Message struct {
	ID            uuid.UUID      `json:"id"`
	MatchID       uuid.UUID      `json:"match_id"`
	SenderID      *uuid.UUID     `json:"sender_id,omitempty"`
	Content       string         `json:"content"`
	Type          MessageType    `json:"type"`
	ProposedTerms map[string]any `json:"proposed_terms,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
