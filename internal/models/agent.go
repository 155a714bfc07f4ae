package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent represents a registered autonomous agent.
type Agent struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	// Reputation is a 0-100 score derived externally from ratings and
	// deal history. The engine reads it, never writes it.
	Reputation float64   `json:"reputation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
