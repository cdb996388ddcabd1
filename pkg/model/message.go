package model

import "time"

// Role of a chat entry in a conversation.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// ChatEntry is one message in the bounded fast-store conversation.
// Entries are stored oldest-first; one human entry followed by one
// assistant entry forms a pair.
type ChatEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is one exchange in the append-only durable audit log.
type Message struct {
	UserID      UserID    `bson:"user_id"`
	AgentID     AgentID   `bson:"agent_id"`
	SessionID   SessionID `bson:"session_id"`
	UserMessage string    `bson:"user_message"`
	BotResponse string    `bson:"bot_response"`
	Timestamp   time.Time `bson:"timestamp"`
}
