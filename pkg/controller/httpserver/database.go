package httpserver

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/usecase/dbadmin"
)

const maxImportSize = 64 << 20 // 64 MiB upload cap

type databaseRequest struct {
	UserID model.UserID `json:"user_id"`
	DBName string       `json:"db_name"`
}

type executeQueryRequest struct {
	UserID model.UserID `json:"user_id"`
	DBName string       `json:"db_name"`
	Query  string       `json:"query"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req databaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := dbadmin.Create(ctx, s.repo, s.admin, req.UserID, req.DBName); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Database created successfully"})
}

func (s *Server) handleDropDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req databaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := dbadmin.Drop(ctx, s.repo, s.admin, s.agents, req.UserID, req.DBName); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Database and associated agent/sessions dropped successfully"})
}

func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req executeQueryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := dbadmin.ExecuteQuery(ctx, s.repo, s.admin, req.UserID, req.DBName, req.Query); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Query executed successfully"})
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, dbName, file, filename, err := s.parseImportForm(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	defer file.Close()

	table := strings.TrimSuffix(filename, filepath.Ext(filename))
	if err := dbadmin.ImportCSV(ctx, s.repo, s.admin, userID, dbName, table, file); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Database created from CSV file successfully"})
}

func (s *Server) handleImportSQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, dbName, file, _, err := s.parseImportForm(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	defer file.Close()

	if err := dbadmin.ImportSQL(ctx, s.repo, s.admin, userID, dbName, file); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Database created from SQL file successfully"})
}

func (s *Server) parseImportForm(r *http.Request) (model.UserID, string, multipart.File, string, error) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		return "", "", nil, "", model.ErrInvalidArgument
	}

	userID := model.UserID(r.FormValue("user_id"))
	dbName := r.FormValue("db_name")
	if userID == "" || dbName == "" {
		return "", "", nil, "", model.ErrInvalidArgument
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, "", model.ErrInvalidArgument
	}
	return userID, dbName, file, header.Filename, nil
}
