package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/neuraly-ai/neuraly/pkg/memory"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/pipeline"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	sessionuc "github.com/neuraly-ai/neuraly/pkg/usecase/session"
)

type fakeStore struct{}

func (s *fakeStore) Range(ctx context.Context, sessionID model.SessionID) ([]model.ChatEntry, error) {
	return nil, nil
}

func (s *fakeStore) Append(ctx context.Context, sessionID model.SessionID, entries ...model.ChatEntry) error {
	return nil
}

func (s *fakeStore) Replace(ctx context.Context, sessionID model.SessionID, entries []model.ChatEntry) error {
	return nil
}

type stubPipeline struct{}

func (p *stubPipeline) Invoke(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
	return "", nil
}

// sessionRepository tracks embedded-session writes; other methods are
// no-ops.
type sessionRepository struct {
	added   []model.SessionRecord
	removed []model.SessionID
	renamed map[model.SessionID]string

	addErr  error
	userErr error
}

func (m *sessionRepository) CreateUser(ctx context.Context, user *model.User) error { return nil }
func (m *sessionRepository) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	if m.userErr != nil {
		return nil, m.userErr
	}
	return &model.User{UserID: id, Sessions: m.added}, nil
}
func (m *sessionRepository) FindUserByLogin(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	return nil, model.ErrNotFound
}
func (m *sessionRepository) ListUsers(ctx context.Context) ([]*model.User, error) { return nil, nil }
func (m *sessionRepository) UpsertAPIKeys(ctx context.Context, keys *model.APIKeys) error {
	return nil
}
func (m *sessionRepository) GetAPIKeys(ctx context.Context, id model.UserID) (*model.APIKeys, error) {
	return nil, model.ErrNotFound
}
func (m *sessionRepository) AddAgent(ctx context.Context, userID model.UserID, agent model.AgentRecord) error {
	return nil
}
func (m *sessionRepository) RemoveAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return nil
}
func (m *sessionRepository) AddSession(ctx context.Context, userID model.UserID, session model.SessionRecord) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, session)
	return nil
}
func (m *sessionRepository) RemoveSession(ctx context.Context, userID model.UserID, sessionID model.SessionID) error {
	m.removed = append(m.removed, sessionID)
	return nil
}
func (m *sessionRepository) RemoveSessionsByAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return nil
}
func (m *sessionRepository) RenameSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, name string) error {
	if m.renamed == nil {
		m.renamed = make(map[model.SessionID]string)
	}
	m.renamed[sessionID] = name
	return nil
}
func (m *sessionRepository) TouchAgent(ctx context.Context, userID model.UserID, agentID model.AgentID, at time.Time) error {
	return nil
}
func (m *sessionRepository) TouchSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, at time.Time) error {
	return nil
}
func (m *sessionRepository) AddDatabase(ctx context.Context, userID model.UserID, name string) error {
	return nil
}
func (m *sessionRepository) RemoveDatabase(ctx context.Context, userID model.UserID, name string) error {
	return nil
}
func (m *sessionRepository) HasDatabase(ctx context.Context, userID model.UserID, name string) (bool, error) {
	return false, nil
}
func (m *sessionRepository) InsertMessage(ctx context.Context, msg *model.Message) error { return nil }
func (m *sessionRepository) EnsureIndexes(ctx context.Context) error                     { return nil }
func (m *sessionRepository) Close(ctx context.Context) error                             { return nil }

func newRegistries(t *testing.T) (*registry.AgentRegistry, *registry.SessionRegistry, model.AgentID) {
	t.Helper()
	sessions := registry.NewSessionRegistry(memory.New(&fakeStore{}))
	agents := registry.NewAgentRegistry(sessions,
		func(ctx context.Context, connStr, credential string) (pipeline.Pipeline, error) {
			return &stubPipeline{}, nil
		})
	agentID := model.NewAgentID()
	gt.NoError(t, agents.AddAgent(context.Background(), agentID, "dsn", ""))
	return agents, sessions, agentID
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("creates session for a live agent", func(t *testing.T) {
		repo := &sessionRepository{}
		agents, sessions, agentID := newRegistries(t)

		record, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:  model.NewUserID(),
			AgentID: agentID,
		})
		gt.NoError(t, err)
		gt.V(t, record.SessionName).Equal("New Chat")
		gt.V(t, record.AgentID).Equal(agentID)

		_, ok := sessions.GetSession(record.SessionID)
		gt.True(t, ok)
		gt.V(t, len(repo.added)).Equal(1)
	})

	t.Run("rejects unknown agent by default", func(t *testing.T) {
		repo := &sessionRepository{}
		agents, sessions, _ := newRegistries(t)

		_, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:  model.NewUserID(),
			AgentID: model.NewAgentID(),
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
		gt.V(t, len(repo.added)).Equal(0)
	})

	t.Run("agent check can be disabled", func(t *testing.T) {
		repo := &sessionRepository{}
		agents, sessions, _ := newRegistries(t)

		record, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:  model.NewUserID(),
			AgentID: model.NewAgentID(),
		}, sessionuc.WithAgentCheck(false))
		gt.NoError(t, err)

		_, ok := sessions.GetSession(record.SessionID)
		gt.True(t, ok)
	})

	t.Run("blank custom name is rejected", func(t *testing.T) {
		repo := &sessionRepository{}
		agents, sessions, agentID := newRegistries(t)

		_, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:      model.NewUserID(),
			AgentID:     agentID,
			SessionName: "   ",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})

	t.Run("unknown user is rejected", func(t *testing.T) {
		repo := &sessionRepository{userErr: goerr.Wrap(model.ErrNotFound, "user not found")}
		agents, sessions, agentID := newRegistries(t)

		_, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:  model.NewUserID(),
			AgentID: agentID,
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("delete removes the record and the handle", func(t *testing.T) {
		repo := &sessionRepository{}
		agents, sessions, agentID := newRegistries(t)
		userID := model.NewUserID()

		record, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:  userID,
			AgentID: agentID,
		})
		gt.NoError(t, err)

		gt.NoError(t, sessionuc.Delete(ctx, repo, sessions, userID, record.SessionID))
		gt.V(t, len(repo.removed)).Equal(1)
		_, ok := sessions.GetSession(record.SessionID)
		gt.False(t, ok)
	})

	t.Run("delete of a session the user does not own", func(t *testing.T) {
		repo := &sessionRepository{}
		_, sessions, _ := newRegistries(t)

		err := sessionuc.Delete(ctx, repo, sessions, model.NewUserID(), model.NewSessionID())
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
		gt.V(t, len(repo.removed)).Equal(0)
	})

	t.Run("rename updates the durable record", func(t *testing.T) {
		repo := &sessionRepository{}
		sessionID := model.NewSessionID()
		userID := model.NewUserID()

		gt.NoError(t, sessionuc.Rename(ctx, repo, userID, sessionID, "Quarterly report"))
		gt.V(t, repo.renamed[sessionID]).Equal("Quarterly report")
	})

	t.Run("rename to a blank name is rejected", func(t *testing.T) {
		repo := &sessionRepository{}
		err := sessionuc.Rename(ctx, repo, model.NewUserID(), model.NewSessionID(), "  ")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})

	t.Run("durable failure rolls the registry back", func(t *testing.T) {
		repo := &sessionRepository{
			addErr: goerr.Wrap(model.ErrDurablePersistence, "write failed"),
		}
		agents, sessions, agentID := newRegistries(t)
		before := sessions.Size()

		_, err := sessionuc.Create(ctx, repo, agents, sessions, sessionuc.CreateInput{
			UserID:  model.NewUserID(),
			AgentID: agentID,
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrDurablePersistence))
		gt.V(t, sessions.Size()).Equal(before)
	})
}
