package registry

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
)

// Rebuild replays every user's embedded agent and session sub-documents
// into the registries. Called once at cold start, before the HTTP router
// accepts traffic.
//
// An agent whose pipeline cannot be constructed (backing database gone,
// credential revoked) is logged and skipped rather than failing startup;
// its sessions are skipped with it so no session references a dead agent.
func Rebuild(ctx context.Context, repo repository.Repository, agents *AgentRegistry, sessions *SessionRegistry) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load user snapshot for rebuild")
	}

	logger := logging.From(ctx)
	for _, user := range users {
		credential := ""
		keys, err := repo.GetAPIKeys(ctx, user.UserID)
		if err == nil {
			credential = keys.OpenAIKey
		} else if !errors.Is(err, model.ErrNotFound) {
			return goerr.Wrap(err, "failed to load API keys for rebuild", goerr.V("user_id", user.UserID))
		}

		alive := make(map[model.AgentID]bool, len(user.Agents))
		for _, agent := range user.Agents {
			if err := agents.AddAgent(ctx, agent.AgentID, agent.DB, credential); err != nil {
				logger.Warn("skipping agent during registry rebuild",
					"user_id", user.UserID, "agent_id", agent.AgentID, "error", err)
				continue
			}
			alive[agent.AgentID] = true
		}

		for _, session := range user.Sessions {
			if !alive[session.AgentID] {
				logger.Warn("skipping session of unavailable agent during registry rebuild",
					"user_id", user.UserID, "session_id", session.SessionID, "agent_id", session.AgentID)
				continue
			}
			sessions.AddSession(session.SessionID, session.AgentID)
		}
	}

	logger.Info("registries rebuilt from durable store",
		"users", len(users), "agents", agents.Size(), "sessions", sessions.Size())
	return nil
}
