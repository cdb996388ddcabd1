package dbadmin

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/adapter"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
)

var dbNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return goerr.Wrap(model.ErrInvalidArgument, "invalid database name", goerr.V("db", name))
	}
	return nil
}

// Create provisions a MySQL database for the user and records the name
// on the user document.
func Create(ctx context.Context, repo repository.Repository, admin *adapter.MySQLAdmin, userID model.UserID, dbName string) error {
	if err := validDBName(dbName); err != nil {
		return err
	}
	if _, err := repo.GetUser(ctx, userID); err != nil {
		return err
	}

	owned, err := repo.HasDatabase(ctx, userID, dbName)
	if err != nil {
		return err
	}
	if owned {
		return goerr.Wrap(model.ErrDuplicateResource, "database already provisioned",
			goerr.V("user_id", userID), goerr.V("db", dbName))
	}

	if err := admin.CreateDatabase(ctx, dbName); err != nil {
		return err
	}
	return repo.AddDatabase(ctx, userID, dbName)
}

// Drop removes the MySQL database and cascades: any agent bound to it is
// evicted (which evicts its sessions in the registry), and the agent and
// session sub-documents are pulled from the user record.
func Drop(ctx context.Context, repo repository.Repository, admin *adapter.MySQLAdmin, agents *registry.AgentRegistry, userID model.UserID, dbName string) error {
	if err := validDBName(dbName); err != nil {
		return err
	}

	owned, err := repo.HasDatabase(ctx, userID, dbName)
	if err != nil {
		return err
	}
	if !owned {
		return goerr.Wrap(model.ErrNotFound, "database record not found for user",
			goerr.V("user_id", userID), goerr.V("db", dbName))
	}

	if err := admin.DropDatabase(ctx, dbName); err != nil {
		return err
	}
	if err := repo.RemoveDatabase(ctx, userID, dbName); err != nil {
		return err
	}

	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, agent := range user.Agents {
		if !strings.HasSuffix(agent.DB, "/"+dbName) {
			continue
		}

		agents.RemoveAgent(agent.AgentID)
		if err := repo.RemoveAgent(ctx, userID, agent.AgentID); err != nil {
			return err
		}
		if err := repo.RemoveSessionsByAgent(ctx, userID, agent.AgentID); err != nil {
			return err
		}
		logging.From(ctx).Info("dropped agent with database",
			"user_id", userID, "agent_id", agent.AgentID, "db", dbName)
	}
	return nil
}

// ExecuteQuery runs one passthrough statement on a database the user owns.
func ExecuteQuery(ctx context.Context, repo repository.Repository, admin *adapter.MySQLAdmin, userID model.UserID, dbName, query string) error {
	if err := validDBName(dbName); err != nil {
		return err
	}

	owned, err := repo.HasDatabase(ctx, userID, dbName)
	if err != nil {
		return err
	}
	if !owned {
		return goerr.Wrap(model.ErrNotFound, "database record not found for user",
			goerr.V("user_id", userID), goerr.V("db", dbName))
	}

	return admin.ExecuteQuery(ctx, dbName, query)
}

// ImportCSV provisions the database if needed and loads a CSV file into
// a table named after the file.
func ImportCSV(ctx context.Context, repo repository.Repository, admin *adapter.MySQLAdmin, userID model.UserID, dbName, table string, r io.Reader) error {
	if err := provision(ctx, repo, admin, userID, dbName); err != nil {
		return err
	}
	return admin.ImportCSV(ctx, dbName, table, r)
}

// ImportSQL provisions the database if needed and executes a SQL script
// against it.
func ImportSQL(ctx context.Context, repo repository.Repository, admin *adapter.MySQLAdmin, userID model.UserID, dbName string, r io.Reader) error {
	if err := provision(ctx, repo, admin, userID, dbName); err != nil {
		return err
	}
	return admin.ImportSQL(ctx, dbName, r)
}

func provision(ctx context.Context, repo repository.Repository, admin *adapter.MySQLAdmin, userID model.UserID, dbName string) error {
	if err := validDBName(dbName); err != nil {
		return err
	}
	if _, err := repo.GetUser(ctx, userID); err != nil {
		return err
	}

	owned, err := repo.HasDatabase(ctx, userID, dbName)
	if err != nil {
		return err
	}

	if err := admin.CreateDatabase(ctx, dbName); err != nil {
		return err
	}
	if !owned {
		if err := repo.AddDatabase(ctx, userID, dbName); err != nil {
			return err
		}
	}
	return nil
}
