package session

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
)

const defaultSessionName = "New Chat"

// CreateInput contains the fields of a create-session request.
type CreateInput struct {
	UserID      model.UserID
	AgentID     model.AgentID
	SessionName string
}

// Option configures session creation.
type Option func(*options)

type options struct {
	agentCheck bool
}

// WithAgentCheck toggles validation that the referenced agent is live at
// creation time. On by default. The session registry itself never
// validates the reference, so turning this off reproduces the legacy
// behavior of accepting sessions for unknown agents.
func WithAgentCheck(enabled bool) Option {
	return func(o *options) {
		o.agentCheck = enabled
	}
}

// Create registers a new session bound to the agent and mirrors it as a
// sub-document on the user record.
func Create(ctx context.Context, repo repository.Repository, agents *registry.AgentRegistry, sessions *registry.SessionRegistry, input CreateInput, opts ...Option) (*model.SessionRecord, error) {
	o := options{agentCheck: true}
	for _, opt := range opts {
		opt(&o)
	}

	name := input.SessionName
	if name == "" {
		name = defaultSessionName
	}
	if strings.TrimSpace(name) == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "session name must not be blank")
	}

	if _, err := repo.GetUser(ctx, input.UserID); err != nil {
		return nil, err
	}

	// Re-validate immediately before insertion: the agent may have been
	// removed between an earlier check and now, and the registry will
	// not reject the dangling reference on its own.
	if o.agentCheck {
		if _, ok := agents.GetAgent(input.AgentID); !ok {
			return nil, goerr.Wrap(model.ErrNotFound, "agent not found",
				goerr.V("agent_id", input.AgentID))
		}
	}

	sessionID := model.NewSessionID()
	sessions.AddSession(sessionID, input.AgentID)

	now := time.Now().UTC()
	record := model.SessionRecord{
		SessionID:   sessionID,
		SessionName: name,
		CreatedAt:   now,
		LastUsed:    now,
		AgentID:     input.AgentID,
	}
	if err := repo.AddSession(ctx, input.UserID, record); err != nil {
		sessions.RemoveSession(sessionID)
		return nil, err
	}
	return &record, nil
}
