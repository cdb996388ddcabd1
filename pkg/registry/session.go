package registry

import (
	"sync"
	"time"

	"github.com/neuraly-ai/neuraly/pkg/memory"
	"github.com/neuraly-ai/neuraly/pkg/model"
)

// Session is a live registry entry: a conversation handle plus a
// reference (not ownership) to the agent serving it.
type Session struct {
	ID           model.SessionID
	AgentID      model.AgentID
	Conversation *memory.Conversation
	LastUsed     time.Time
}

// SessionRegistry is a concurrency-safe cache of live sessions, keyed by
// session ID.
//
// AddSession does not validate that the referenced agent exists; that is
// a caller responsibility (the create-session usecase checks it).
// Dangling references after agent removal are prevented by the cascade in
// AgentRegistry.RemoveAgent, not by lookup-time validation.
type SessionRegistry struct {
	mu            sync.Mutex
	sessions      map[model.SessionID]*Session
	conversations *memory.Store
}

func NewSessionRegistry(conversations *memory.Store) *SessionRegistry {
	return &SessionRegistry{
		sessions:      make(map[model.SessionID]*Session),
		conversations: conversations,
	}
}

// AddSession inserts a session bound to the agent and allocates its
// conversation handle. Idempotent: a present ID is a no-op. An empty
// conversation is valid; no fast-store round trip happens here.
func (r *SessionRegistry) AddSession(id model.SessionID, agentID model.AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return
	}
	r.sessions[id] = &Session{
		ID:           id,
		AgentID:      agentID,
		Conversation: r.conversations.Conversation(id),
		LastUsed:     time.Now().UTC(),
	}
}

// GetSession returns the live session for the ID, if present.
func (r *SessionRegistry) GetSession(id model.SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// UpdateLastUsed refreshes the last-access timestamp. No-op when absent.
func (r *SessionRegistry) UpdateLastUsed(id model.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		session.LastUsed = time.Now().UTC()
	}
}

// RemoveSession forgets the in-memory handle. The fast-store history and
// the durable audit log are left untouched.
func (r *SessionRegistry) RemoveSession(id model.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// RemoveSessionsByAgent evicts every session referencing the agent in
// one critical section, so no dependent session survives the cascade and
// none can be observed mid-sweep.
func (r *SessionRegistry) RemoveSessionsByAgent(agentID model.AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.AgentID == agentID {
			delete(r.sessions, id)
		}
	}
}

// Size reports the number of live sessions.
func (r *SessionRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
