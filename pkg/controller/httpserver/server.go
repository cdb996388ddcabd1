package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/neuraly-ai/neuraly/pkg/adapter"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	chatuc "github.com/neuraly-ai/neuraly/pkg/usecase/chat"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
)

// Server holds the long-lived dependencies shared by all handlers. It is
// constructed once at startup, after the registries are rebuilt.
type Server struct {
	repo     repository.Repository
	agents   *registry.AgentRegistry
	sessions *registry.SessionRegistry
	chat     *chatuc.UseCase
	admin    *adapter.MySQLAdmin
	logger   *slog.Logger

	agentCheck bool
}

type Option func(*Server)

// WithAgentCheck toggles agent-existence validation at session creation.
func WithAgentCheck(enabled bool) Option {
	return func(s *Server) {
		s.agentCheck = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(repo repository.Repository, agents *registry.AgentRegistry, sessions *registry.SessionRegistry, chat *chatuc.UseCase, admin *adapter.MySQLAdmin, opts ...Option) *Server {
	s := &Server{
		repo:       repo,
		agents:     agents,
		sessions:   sessions,
		chat:       chat,
		admin:      admin,
		logger:     logging.Default(),
		agentCheck: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/update_api_key", s.handleUpdateAPIKey)

	r.Post("/create_agent", s.handleCreateAgent)
	r.Post("/delete_agent", s.handleDeleteAgent)

	r.Post("/create_session", s.handleCreateSession)
	r.Post("/delete_session", s.handleDeleteSession)
	r.Post("/rename_session", s.handleRenameSession)

	r.Post("/chat", s.handleChat)

	r.Post("/create_database", s.handleCreateDatabase)
	r.Post("/drop_database", s.handleDropDatabase)
	r.Post("/execute_query", s.handleExecuteQuery)
	r.Post("/create_database_from_csv", s.handleImportCSV)
	r.Post("/create_database_from_sql", s.handleImportSQL)

	return r
}

// requestLogger attaches the server logger to the request context and
// emits one line per completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logging.With(r.Context(), s.logger)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(ctx),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
