package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// SessionRecord is the durable mirror of a session, embedded in the owning
// user document. AgentID is a reference, not ownership.
type SessionRecord struct {
	SessionID   SessionID `bson:"session_id" json:"session_id"`
	SessionName string    `bson:"session_name" json:"session_name"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	LastUsed    time.Time `bson:"last_used" json:"last_used"`
	AgentID     AgentID   `bson:"agent_id" json:"agent_id"`
}
