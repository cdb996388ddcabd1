package httpserver

import (
	"net/http"

	"github.com/neuraly-ai/neuraly/pkg/model"
	useruc "github.com/neuraly-ai/neuraly/pkg/usecase/user"
)

type registerRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type registerResponse struct {
	UserID   model.UserID `json:"user_id"`
	Username string       `json:"username"`
	Email    string       `json:"email"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	user, err := useruc.Register(ctx, s.repo, useruc.RegisterInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		UserID:   user.UserID,
		Username: user.Username,
		Email:    user.Email,
	})
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

type loginResponse struct {
	UserID   model.UserID `json:"user_id"`
	Username string       `json:"username"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	user, err := useruc.Login(ctx, s.repo, req.UsernameOrEmail, req.Password)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "user_id",
		Value:    string(user.UserID),
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, loginResponse{
		UserID:   user.UserID,
		Username: user.Username,
	})
}

type updateAPIKeyRequest struct {
	UserID       model.UserID `json:"user_id"`
	OpenAIKey    string       `json:"openai_key"`
	FireworksKey string       `json:"fireworks_key"`
}

type updateAPIKeyResponse struct {
	KeyUpdated bool `json:"key_updated"`
}

func (s *Server) handleUpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateAPIKeyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	err := useruc.UpdateAPIKeys(ctx, s.repo, useruc.UpdateAPIKeysInput{
		UserID:       req.UserID,
		OpenAIKey:    req.OpenAIKey,
		FireworksKey: req.FireworksKey,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateAPIKeyResponse{KeyUpdated: true})
}
