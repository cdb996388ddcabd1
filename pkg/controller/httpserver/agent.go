package httpserver

import (
	"net/http"
	"time"

	"github.com/neuraly-ai/neuraly/pkg/model"
	agentuc "github.com/neuraly-ai/neuraly/pkg/usecase/agent"
)

type createAgentRequest struct {
	UserID    model.UserID `json:"user_id"`
	AgentName string       `json:"agent_name"`
	DBConnStr string       `json:"db_connection_str"`
}

type createAgentResponse struct {
	AgentID   model.AgentID `json:"agent_id"`
	AgentName string        `json:"agent_name"`
	CreatedAt time.Time     `json:"created_at"`
	LastUsed  time.Time     `json:"last_used"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := agentuc.Create(ctx, s.repo, s.agents, agentuc.CreateInput{
		UserID:    req.UserID,
		AgentName: req.AgentName,
		DBConnStr: req.DBConnStr,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, createAgentResponse{
		AgentID:   record.AgentID,
		AgentName: record.AgentName,
		CreatedAt: record.CreatedAt,
		LastUsed:  record.LastUsed,
	})
}

type deleteAgentRequest struct {
	UserID  model.UserID  `json:"user_id"`
	AgentID model.AgentID `json:"agent_id"`
}

type deleteAgentResponse struct {
	AgentID model.AgentID `json:"agent_id"`
	Deleted bool          `json:"deleted"`
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req deleteAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := agentuc.Remove(ctx, s.repo, s.agents, req.UserID, req.AgentID); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteAgentResponse{AgentID: req.AgentID, Deleted: true})
}
