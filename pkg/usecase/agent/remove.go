package agent

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
)

// Remove evicts the agent from the registry (cascading to its sessions)
// and pulls the agent plus dependent session sub-documents from the user
// record.
func Remove(ctx context.Context, repo repository.Repository, agents *registry.AgentRegistry, userID model.UserID, agentID model.AgentID) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for _, existing := range user.Agents {
		if existing.AgentID == agentID {
			found = true
			break
		}
	}
	if !found {
		return goerr.Wrap(model.ErrNotFound, "agent not found for user",
			goerr.V("user_id", userID), goerr.V("agent_id", agentID))
	}

	agents.RemoveAgent(agentID)

	if err := repo.RemoveAgent(ctx, userID, agentID); err != nil {
		return err
	}
	if err := repo.RemoveSessionsByAgent(ctx, userID, agentID); err != nil {
		return err
	}
	return nil
}
