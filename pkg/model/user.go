package model

import "github.com/google/uuid"

type UserID string

// NewUserID generates a new unique UserID
func NewUserID() UserID {
	return UserID(uuid.New().String())
}

// User is the durable source of truth for a tenant. The registries are a
// derived, rebuildable cache of the embedded Agents and Sessions arrays.
type User struct {
	UserID    UserID          `bson:"user_id"`
	Username  string          `bson:"username"`
	FirstName string          `bson:"first_name"`
	LastName  string          `bson:"last_name"`
	Email     string          `bson:"email"`
	Password  string          `bson:"password"`
	Agents    []AgentRecord   `bson:"agents,omitempty"`
	Sessions  []SessionRecord `bson:"sessions,omitempty"`
	Databases []string        `bson:"databases,omitempty"`
}

// APIKeys holds per-user credentials for the query pipeline backends.
type APIKeys struct {
	UserID       UserID `bson:"user_id"`
	OpenAIKey    string `bson:"openai_key,omitempty"`
	FireworksKey string `bson:"fireworks_key,omitempty"`
}
