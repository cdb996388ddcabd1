package session

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/repository"
)

// Rename updates the display name of an embedded session sub-document.
func Rename(ctx context.Context, repo repository.Repository, userID model.UserID, sessionID model.SessionID, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return goerr.Wrap(model.ErrInvalidArgument, "session name must not be blank")
	}
	return repo.RenameSession(ctx, userID, sessionID, newName)
}
