package user

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	"golang.org/x/crypto/bcrypt"
)

// RegisterInput contains the fields of a registration request.
type RegisterInput struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (x *RegisterInput) validate() error {
	if n := len(x.Username); n < 3 || n > 20 {
		return goerr.Wrap(model.ErrInvalidArgument, "username must be 3-20 characters")
	}
	if n := len(x.FirstName); n < 1 || n > 50 {
		return goerr.Wrap(model.ErrInvalidArgument, "first name must be 1-50 characters")
	}
	if n := len(x.LastName); n < 1 || n > 50 {
		return goerr.Wrap(model.ErrInvalidArgument, "last name must be 1-50 characters")
	}
	at := strings.Index(x.Email, "@")
	if at < 1 || at == len(x.Email)-1 {
		return goerr.Wrap(model.ErrInvalidArgument, "invalid email address")
	}
	if len(x.Password) < 8 {
		return goerr.Wrap(model.ErrInvalidArgument, "password must be at least 8 characters")
	}
	return nil
}

// Register creates a new user with a bcrypt-hashed password.
func Register(ctx context.Context, repo repository.Repository, input RegisterInput) (*model.User, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to hash password")
	}

	user := &model.User{
		UserID:    model.NewUserID(),
		Username:  input.Username,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Password:  string(hashed),
	}

	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
