package user

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	"golang.org/x/crypto/bcrypt"
)

// Login verifies credentials and returns the user. Unknown users and
// wrong passwords produce the same error so the response does not reveal
// which one failed.
func Login(ctx context.Context, repo repository.Repository, usernameOrEmail, password string) (*model.User, error) {
	user, err := repo.FindUserByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, goerr.Wrap(model.ErrInvalidArgument, "invalid credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "invalid credentials")
	}
	return user, nil
}
