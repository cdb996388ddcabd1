package httpserver

import (
	"net/http"

	"github.com/neuraly-ai/neuraly/pkg/model"
	chatuc "github.com/neuraly-ai/neuraly/pkg/usecase/chat"
)

type chatRequest struct {
	UserID    model.UserID    `json:"user_id"`
	SessionID model.SessionID `json:"session_id"`
	Message   string          `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	answer, err := s.chat.Turn(ctx, chatuc.TurnInput{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: answer})
}
