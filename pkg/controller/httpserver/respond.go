package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the error taxonomy to a status code. Internal error
// text is never leaked for persistence and construction failures; those
// get a fixed message and full detail goes to the log instead.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logging.From(ctx).Error("request failed", "error", err)

	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrInvalidCredentialFormat),
		errors.Is(err, model.ErrDuplicateResource):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrMemoryStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "conversation memory unavailable"})
	case errors.Is(err, model.ErrPipelineExecution):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query pipeline failed"})
	case errors.Is(err, model.ErrAgentConstruction):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to initialize agent"})
	case errors.Is(err, model.ErrDurablePersistence):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal storage error"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "an unexpected error occurred"})
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.ErrInvalidArgument
	}
	return nil
}
