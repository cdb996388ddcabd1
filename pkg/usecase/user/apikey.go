package user

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/repository"
)

var (
	openaiKeyPattern    = regexp.MustCompile(`^sk-(proj-)?[a-zA-Z0-9]{48}$`)
	fireworksKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]{48}$`)
)

// UpdateAPIKeysInput carries the keys to store; at least one must be set.
type UpdateAPIKeysInput struct {
	UserID       model.UserID
	OpenAIKey    string
	FireworksKey string
}

// UpdateAPIKeys validates and upserts the pipeline credentials of a user.
func UpdateAPIKeys(ctx context.Context, repo repository.Repository, input UpdateAPIKeysInput) error {
	if _, err := repo.GetUser(ctx, input.UserID); err != nil {
		return err
	}

	if input.OpenAIKey == "" && input.FireworksKey == "" {
		return goerr.Wrap(model.ErrInvalidArgument, "at least one API key must be provided")
	}
	if input.OpenAIKey != "" && !openaiKeyPattern.MatchString(input.OpenAIKey) {
		return goerr.Wrap(model.ErrInvalidCredentialFormat, "invalid OpenAI key format",
			goerr.V("user_id", input.UserID))
	}
	if input.FireworksKey != "" && !fireworksKeyPattern.MatchString(input.FireworksKey) {
		return goerr.Wrap(model.ErrInvalidCredentialFormat, "invalid Fireworks key format",
			goerr.V("user_id", input.UserID))
	}

	keys := &model.APIKeys{
		UserID:       input.UserID,
		OpenAIKey:    input.OpenAIKey,
		FireworksKey: input.FireworksKey,
	}
	return repo.UpsertAPIKeys(ctx, keys)
}
