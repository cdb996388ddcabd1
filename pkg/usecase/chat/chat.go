package chat

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
)

// UseCase runs chat turns: resolve session and agent, invoke the
// pipeline with the trimmed history, persist the exchange, refresh
// last-used timestamps.
type UseCase struct {
	repo     repository.Repository
	agents   *registry.AgentRegistry
	sessions *registry.SessionRegistry

	// One mutex per session serializes the fetch-invoke-append-enforce
	// window. The fast-store sequence is not atomic on its own, so
	// concurrent turns on the same session would race without this.
	turnMu    sync.Mutex
	turnLocks map[model.SessionID]*sync.Mutex
}

func New(repo repository.Repository, agents *registry.AgentRegistry, sessions *registry.SessionRegistry) *UseCase {
	return &UseCase{
		repo:      repo,
		agents:    agents,
		sessions:  sessions,
		turnLocks: make(map[model.SessionID]*sync.Mutex),
	}
}

// TurnInput contains the fields of one chat request.
type TurnInput struct {
	UserID    model.UserID
	SessionID model.SessionID
	Message   string
}

// Turn processes one exchange and returns the assistant's answer. A
// failed pipeline invocation or store operation fails the whole turn
// with no partial commit: the history append happens only after a
// successful pipeline response.
func (uc *UseCase) Turn(ctx context.Context, input TurnInput) (string, error) {
	if input.Message == "" {
		return "", goerr.Wrap(model.ErrInvalidArgument, "message must not be empty")
	}

	session, ok := uc.sessions.GetSession(input.SessionID)
	if !ok {
		return "", goerr.Wrap(model.ErrNotFound, "session not found",
			goerr.V("session_id", input.SessionID))
	}

	agent, ok := uc.agents.GetAgent(session.AgentID)
	if !ok {
		return "", goerr.Wrap(model.ErrNotFound, "agent not found",
			goerr.V("agent_id", session.AgentID))
	}

	lock := uc.sessionLock(input.SessionID)
	lock.Lock()
	defer lock.Unlock()

	history, err := session.Conversation.Messages(ctx)
	if err != nil {
		return "", err
	}

	answer, err := agent.Pipeline.Invoke(ctx, input.Message, history)
	if err != nil {
		return "", err
	}

	if err := session.Conversation.AppendExchange(ctx, input.Message, answer); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	msg := &model.Message{
		UserID:      input.UserID,
		AgentID:     session.AgentID,
		SessionID:   input.SessionID,
		UserMessage: input.Message,
		BotResponse: answer,
		Timestamp:   now,
	}
	if err := uc.repo.InsertMessage(ctx, msg); err != nil {
		return "", err
	}

	uc.sessions.UpdateLastUsed(input.SessionID)
	uc.agents.UpdateLastUsed(session.AgentID)

	// Timestamp mirroring is derived metadata; a failure here does not
	// invalidate the already-persisted exchange.
	logger := logging.From(ctx)
	if err := uc.repo.TouchSession(ctx, input.UserID, input.SessionID, now); err != nil {
		logger.Warn("failed to update session last_used", "session_id", input.SessionID, "error", err)
	}
	if err := uc.repo.TouchAgent(ctx, input.UserID, session.AgentID, now); err != nil {
		logger.Warn("failed to update agent last_used", "agent_id", session.AgentID, "error", err)
	}

	return answer, nil
}

func (uc *UseCase) sessionLock(id model.SessionID) *sync.Mutex {
	uc.turnMu.Lock()
	defer uc.turnMu.Unlock()
	lock, ok := uc.turnLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		uc.turnLocks[id] = lock
	}
	return lock
}
