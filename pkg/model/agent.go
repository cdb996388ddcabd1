package model

import (
	"time"

	"github.com/google/uuid"
)

type AgentID string

// NewAgentID generates a new unique AgentID
func NewAgentID() AgentID {
	return AgentID(uuid.New().String())
}

// AgentRecord is the durable mirror of an agent, embedded in the owning
// user document.
type AgentRecord struct {
	AgentID   AgentID   `bson:"agent_id" json:"agent_id"`
	AgentName string    `bson:"agent_name" json:"agent_name"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	LastUsed  time.Time `bson:"last_used" json:"last_used"`
	DB        string    `bson:"db" json:"db"`
}
