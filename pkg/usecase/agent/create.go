package agent

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	"github.com/neuraly-ai/neuraly/pkg/repository"
)

const defaultAgentName = "New Agent"

// connStrPattern accepts the two supported connection descriptors: a
// go-sql-driver MySQL DSN or a bigquery://<project>/<dataset> tag.
var connStrPattern = regexp.MustCompile(
	`^(\w+:[^@\s]*@tcp\([\w.\-]+:\d+\)/\w+|bigquery://[\w\-]+/\w+)$`)

// CreateInput contains the fields of a create-agent request.
type CreateInput struct {
	UserID    model.UserID
	AgentName string
	DBConnStr string
}

// Create builds a live agent for the user's database connection and
// mirrors it as a sub-document on the user record. The registry entry is
// created first; if the durable write fails the entry is rolled back so
// cache and store stay consistent.
func Create(ctx context.Context, repo repository.Repository, agents *registry.AgentRegistry, input CreateInput) (*model.AgentRecord, error) {
	name := input.AgentName
	if name == "" {
		name = defaultAgentName
	}
	if strings.TrimSpace(name) == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "agent name must not be blank")
	}
	if !connStrPattern.MatchString(input.DBConnStr) {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "invalid database connection string format")
	}

	user, err := repo.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	for _, existing := range user.Agents {
		if existing.AgentName == name {
			return nil, goerr.Wrap(model.ErrDuplicateResource, "agent name already exists for user",
				goerr.V("agent_name", name))
		}
	}

	credential := ""
	keys, err := repo.GetAPIKeys(ctx, input.UserID)
	if err == nil {
		credential = keys.OpenAIKey
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	agentID := model.NewAgentID()
	if err := agents.AddAgent(ctx, agentID, input.DBConnStr, credential); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := model.AgentRecord{
		AgentID:   agentID,
		AgentName: name,
		CreatedAt: now,
		LastUsed:  now,
		DB:        input.DBConnStr,
	}
	if err := repo.AddAgent(ctx, input.UserID, record); err != nil {
		agents.RemoveAgent(agentID)
		return nil, err
	}
	return &record, nil
}
