package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/controller/httpserver"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	chatuc "github.com/neuraly-ai/neuraly/pkg/usecase/chat"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// Missing .env is fine, environment variables still apply
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "neuraly",
		Usage: "Natural-language SQL chat backend",
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func serveCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, &cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config) error {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			logger.Warn("failed to close repository", "error", err)
		}
	}()

	if err := repo.EnsureIndexes(ctx); err != nil {
		return goerr.Wrap(err, "failed to ensure indexes")
	}

	mem, err := cfg.newMemoryStore(ctx)
	if err != nil {
		return err
	}

	sessions := registry.NewSessionRegistry(mem)
	agents := registry.NewAgentRegistry(sessions, cfg.pipelineFactory())

	if err := registry.Rebuild(ctx, repo, agents, sessions); err != nil {
		return goerr.Wrap(err, "failed to rebuild registries")
	}

	admin, err := cfg.newMySQLAdmin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := admin.Close(); err != nil {
			logger.Warn("failed to close MySQL admin client", "error", err)
		}
	}()

	chat := chatuc.New(repo, agents, sessions)

	srv := httpserver.New(repo, agents, sessions, chat, admin,
		httpserver.WithAgentCheck(cfg.agentCheck),
		httpserver.WithLogger(logger),
	)

	httpSrv := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return goerr.Wrap(err, "HTTP server failed")
	case <-sigCtx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down HTTP server")
	}

	return nil
}
