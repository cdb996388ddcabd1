package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/adapter"
	"github.com/neuraly-ai/neuraly/pkg/memory"
	"github.com/neuraly-ai/neuraly/pkg/pipeline"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Server
	addr     string
	logLevel string

	// Durable document store
	mongoURI     string
	mongoDB      string
	mongoMinPool uint64
	mongoMaxPool uint64

	// Fast store
	redisAddr     string
	redisPassword string
	redisDB       int64

	// Tenant database server
	mysqlHost string
	mysqlUser string
	mysqlPass string

	// Pipeline
	geminiModel string

	// Conversation memory
	maxPairs   int64
	maxTokens  int64
	bestEffort bool

	// Session creation
	agentCheck bool
}

// globalFlags returns the serve command flags with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP listen address",
			Value:       ":8000",
			Sources:     cli.EnvVars("NEURALY_ADDR"),
			Destination: &cfg.addr,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("NEURALY_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "mongo-uri",
			Usage:       "MongoDB connection URI",
			Value:       "mongodb://localhost:27017/",
			Sources:     cli.EnvVars("DATABASE_URL"),
			Destination: &cfg.mongoURI,
		},
		&cli.StringFlag{
			Name:        "mongo-db",
			Usage:       "MongoDB database name",
			Value:       "neuralyai",
			Sources:     cli.EnvVars("DATABASE_NAME"),
			Destination: &cfg.mongoDB,
		},
		&cli.UintFlag{
			Name:        "mongo-min-pool",
			Usage:       "Minimum MongoDB connection pool size",
			Value:       10,
			Sources:     cli.EnvVars("MIN_POOL_SIZE"),
			Destination: &cfg.mongoMinPool,
		},
		&cli.UintFlag{
			Name:        "mongo-max-pool",
			Usage:       "Maximum MongoDB connection pool size",
			Value:       10,
			Sources:     cli.EnvVars("MAX_POOL_SIZE"),
			Destination: &cfg.mongoMaxPool,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for conversation memory",
			Value:       "localhost:6379",
			Sources:     cli.EnvVars("REDIS_ADDR"),
			Destination: &cfg.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Sources:     cli.EnvVars("REDIS_PASSWORD"),
			Destination: &cfg.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Sources:     cli.EnvVars("REDIS_DB"),
			Destination: &cfg.redisDB,
		},
		&cli.StringFlag{
			Name:        "mysql-host",
			Usage:       "MySQL server host:port for tenant databases",
			Value:       "localhost:3306",
			Sources:     cli.EnvVars("MYSQL_HOST"),
			Destination: &cfg.mysqlHost,
		},
		&cli.StringFlag{
			Name:        "mysql-user",
			Usage:       "MySQL administrative user",
			Value:       "root",
			Sources:     cli.EnvVars("MYSQL_USER"),
			Destination: &cfg.mysqlUser,
		},
		&cli.StringFlag{
			Name:        "mysql-password",
			Usage:       "MySQL administrative password",
			Sources:     cli.EnvVars("MYSQL_PASSWORD"),
			Destination: &cfg.mysqlPass,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for query generation and rephrasing",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.IntFlag{
			Name:        "max-pairs",
			Usage:       "Maximum message pairs retained per session",
			Value:       5,
			Sources:     cli.EnvVars("MAX_PAIRS_IN_MEMORY"),
			Destination: &cfg.maxPairs,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Usage:       "Maximum total tokens retained per session",
			Value:       800,
			Sources:     cli.EnvVars("MAX_TOKENS"),
			Destination: &cfg.maxTokens,
		},
		&cli.BoolFlag{
			Name:        "memory-best-effort",
			Usage:       "Proceed with a chat turn when memory limit enforcement fails",
			Sources:     cli.EnvVars("MEMORY_BEST_EFFORT"),
			Destination: &cfg.bestEffort,
		},
		&cli.BoolFlag{
			Name:        "session-agent-check",
			Usage:       "Validate that the agent exists when creating a session",
			Value:       true,
			Sources:     cli.EnvVars("SESSION_AGENT_CHECK"),
			Destination: &cfg.agentCheck,
		},
	}
}

// newRepository creates the durable store client
func (cfg *config) newRepository(ctx context.Context) (*repository.Mongo, error) {
	if cfg.mongoURI == "" {
		return nil, goerr.New("mongo-uri is required")
	}
	repo, err := repository.NewMongo(ctx, cfg.mongoURI, cfg.mongoDB,
		repository.WithPoolSize(cfg.mongoMinPool, cfg.mongoMaxPool))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newMemoryStore creates the bounded conversation store over Redis
func (cfg *config) newMemoryStore(ctx context.Context) (*memory.Store, error) {
	kv, err := adapter.NewRedis(ctx, cfg.redisAddr,
		adapter.WithRedisPassword(cfg.redisPassword),
		adapter.WithRedisDB(int(cfg.redisDB)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create redis store")
	}

	return memory.New(kv,
		memory.WithMaxPairs(int(cfg.maxPairs)),
		memory.WithMaxTokens(int(cfg.maxTokens)),
		memory.WithBestEffort(cfg.bestEffort),
	), nil
}

// newMySQLAdmin creates the tenant database administrator
func (cfg *config) newMySQLAdmin(ctx context.Context) (*adapter.MySQLAdmin, error) {
	admin, err := adapter.NewMySQLAdmin(ctx, cfg.mysqlUser, cfg.mysqlPass, cfg.mysqlHost)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create MySQL admin client")
	}
	return admin, nil
}

// pipelineFactory returns the constructor the agent registry uses to
// build one pipeline per agent.
func (cfg *config) pipelineFactory() registry.PipelineFactory {
	return func(ctx context.Context, connStr, credential string) (pipeline.Pipeline, error) {
		llm, err := adapter.NewGemini(ctx, credential, adapter.WithGenerativeModel(cfg.geminiModel))
		if err != nil {
			return nil, err
		}

		engine, err := pipeline.NewEngine(ctx, connStr)
		if err != nil {
			return nil, err
		}

		return pipeline.New(ctx, llm, engine)
	}
}
