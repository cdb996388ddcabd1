package session

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
)

// Delete removes the session sub-document and forgets the in-memory
// handle. The fast-store history and the durable audit log remain.
func Delete(ctx context.Context, repo repository.Repository, sessions *registry.SessionRegistry, userID model.UserID, sessionID model.SessionID) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for _, existing := range user.Sessions {
		if existing.SessionID == sessionID {
			found = true
			break
		}
	}
	if !found {
		return goerr.Wrap(model.ErrNotFound, "session not found for user",
			goerr.V("user_id", userID), goerr.V("session_id", sessionID))
	}

	if err := repo.RemoveSession(ctx, userID, sessionID); err != nil {
		return err
	}
	sessions.RemoveSession(sessionID)
	return nil
}
