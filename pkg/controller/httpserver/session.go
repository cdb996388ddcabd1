package httpserver

import (
	"net/http"
	"time"

	"github.com/neuraly-ai/neuraly/pkg/model"
	sessionuc "github.com/neuraly-ai/neuraly/pkg/usecase/session"
)

type createSessionRequest struct {
	UserID      model.UserID  `json:"user_id"`
	AgentID     model.AgentID `json:"agent_id"`
	SessionName string        `json:"session_name"`
}

type createSessionResponse struct {
	SessionID   model.SessionID `json:"session_id"`
	SessionName string          `json:"session_name"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUsed    time.Time       `json:"last_used"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := sessionuc.Create(ctx, s.repo, s.agents, s.sessions, sessionuc.CreateInput{
		UserID:      req.UserID,
		AgentID:     req.AgentID,
		SessionName: req.SessionName,
	}, sessionuc.WithAgentCheck(s.agentCheck))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:   record.SessionID,
		SessionName: record.SessionName,
		CreatedAt:   record.CreatedAt,
		LastUsed:    record.LastUsed,
	})
}

type deleteSessionRequest struct {
	UserID    model.UserID    `json:"user_id"`
	SessionID model.SessionID `json:"session_id"`
}

type deleteSessionResponse struct {
	SessionID model.SessionID `json:"session_id"`
	Deleted   bool            `json:"deleted"`
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req deleteSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := sessionuc.Delete(ctx, s.repo, s.sessions, req.UserID, req.SessionID); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteSessionResponse{SessionID: req.SessionID, Deleted: true})
}

type renameSessionRequest struct {
	UserID         model.UserID    `json:"user_id"`
	SessionID      model.SessionID `json:"session_id"`
	NewSessionName string          `json:"new_session_name"`
}

type renameSessionResponse struct {
	SessionID      model.SessionID `json:"session_id"`
	NewSessionName string          `json:"new_session_name"`
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req renameSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := sessionuc.Rename(ctx, s.repo, req.UserID, req.SessionID, req.NewSessionName); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, renameSessionResponse{
		SessionID:      req.SessionID,
		NewSessionName: req.NewSessionName,
	})
}
