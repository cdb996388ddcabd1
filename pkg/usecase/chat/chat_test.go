package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/neuraly-ai/neuraly/pkg/memory"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/pipeline"
	"github.com/neuraly-ai/neuraly/pkg/registry"
	chatuc "github.com/neuraly-ai/neuraly/pkg/usecase/chat"
)

type fakeStore struct {
	mu    sync.Mutex
	lists map[model.SessionID][]model.ChatEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{lists: make(map[model.SessionID][]model.ChatEntry)}
}

func (s *fakeStore) Range(ctx context.Context, sessionID model.SessionID) ([]model.ChatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]model.ChatEntry, len(s.lists[sessionID]))
	copy(entries, s.lists[sessionID])
	return entries, nil
}

func (s *fakeStore) Append(ctx context.Context, sessionID model.SessionID, entries ...model.ChatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[sessionID] = append(s.lists[sessionID], entries...)
	return nil
}

func (s *fakeStore) Replace(ctx context.Context, sessionID model.SessionID, entries []model.ChatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[sessionID] = entries
	return nil
}

func (s *fakeStore) entries(sessionID model.SessionID) []model.ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists[sessionID]
}

type mockPipeline struct {
	invokeFunc func(ctx context.Context, message string, history []model.ChatEntry) (string, error)
}

func (m *mockPipeline) Invoke(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, message, history)
	}
	return "answer", nil
}

// auditRepository records audit-log inserts and timestamp touches; all
// other repository methods are no-ops.
type auditRepository struct {
	mu       sync.Mutex
	messages []*model.Message
	touched  []string

	insertErr error
}

func (m *auditRepository) CreateUser(ctx context.Context, user *model.User) error { return nil }
func (m *auditRepository) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	return &model.User{UserID: id}, nil
}
func (m *auditRepository) FindUserByLogin(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	return nil, model.ErrNotFound
}
func (m *auditRepository) ListUsers(ctx context.Context) ([]*model.User, error) { return nil, nil }
func (m *auditRepository) UpsertAPIKeys(ctx context.Context, keys *model.APIKeys) error {
	return nil
}
func (m *auditRepository) GetAPIKeys(ctx context.Context, id model.UserID) (*model.APIKeys, error) {
	return nil, model.ErrNotFound
}
func (m *auditRepository) AddAgent(ctx context.Context, userID model.UserID, agent model.AgentRecord) error {
	return nil
}
func (m *auditRepository) RemoveAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return nil
}
func (m *auditRepository) AddSession(ctx context.Context, userID model.UserID, session model.SessionRecord) error {
	return nil
}
func (m *auditRepository) RemoveSession(ctx context.Context, userID model.UserID, sessionID model.SessionID) error {
	return nil
}
func (m *auditRepository) RemoveSessionsByAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return nil
}
func (m *auditRepository) RenameSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, name string) error {
	return nil
}
func (m *auditRepository) TouchAgent(ctx context.Context, userID model.UserID, agentID model.AgentID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, "agent")
	return nil
}
func (m *auditRepository) TouchSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, "session")
	return nil
}
func (m *auditRepository) AddDatabase(ctx context.Context, userID model.UserID, name string) error {
	return nil
}
func (m *auditRepository) RemoveDatabase(ctx context.Context, userID model.UserID, name string) error {
	return nil
}
func (m *auditRepository) HasDatabase(ctx context.Context, userID model.UserID, name string) (bool, error) {
	return false, nil
}
func (m *auditRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}
func (m *auditRepository) EnsureIndexes(ctx context.Context) error { return nil }
func (m *auditRepository) Close(ctx context.Context) error         { return nil }

type fixture struct {
	repo      *auditRepository
	kv        *fakeStore
	uc        *chatuc.UseCase
	userID    model.UserID
	agentID   model.AgentID
	sessionID model.SessionID
}

func setup(t *testing.T, p pipeline.Pipeline) *fixture {
	t.Helper()
	ctx := context.Background()

	kv := newFakeStore()
	sessions := registry.NewSessionRegistry(memory.New(kv))
	agents := registry.NewAgentRegistry(sessions,
		func(ctx context.Context, connStr, credential string) (pipeline.Pipeline, error) {
			return p, nil
		})

	f := &fixture{
		repo:      &auditRepository{},
		kv:        kv,
		userID:    model.NewUserID(),
		agentID:   model.NewAgentID(),
		sessionID: model.NewSessionID(),
	}
	gt.NoError(t, agents.AddAgent(ctx, f.agentID, "dsn", ""))
	sessions.AddSession(f.sessionID, f.agentID)

	f.uc = chatuc.New(f.repo, agents, sessions)
	return f
}

func TestTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("successful turn persists the exchange", func(t *testing.T) {
		f := setup(t, &mockPipeline{
			invokeFunc: func(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
				return "You have 3 orders.", nil
			},
		})

		answer, err := f.uc.Turn(ctx, chatuc.TurnInput{
			UserID:    f.userID,
			SessionID: f.sessionID,
			Message:   "how many orders?",
		})
		gt.NoError(t, err)
		gt.V(t, answer).Equal("You have 3 orders.")

		// The fast-store history holds the pair.
		entries := f.kv.entries(f.sessionID)
		gt.V(t, len(entries)).Equal(2)
		gt.V(t, entries[0].Role).Equal(model.RoleHuman)
		gt.V(t, entries[1].Content).Equal("You have 3 orders.")

		// The audit log holds the full exchange.
		gt.V(t, len(f.repo.messages)).Equal(1)
		msg := f.repo.messages[0]
		gt.V(t, msg.UserID).Equal(f.userID)
		gt.V(t, msg.AgentID).Equal(f.agentID)
		gt.V(t, msg.SessionID).Equal(f.sessionID)
		gt.V(t, msg.UserMessage).Equal("how many orders?")
		gt.V(t, msg.BotResponse).Equal("You have 3 orders.")

		// Durable timestamps were mirrored.
		gt.V(t, len(f.repo.touched)).Equal(2)
	})

	t.Run("prior history reaches the pipeline", func(t *testing.T) {
		var seen []model.ChatEntry
		f := setup(t, &mockPipeline{
			invokeFunc: func(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
				seen = history
				return "answer", nil
			},
		})

		gt.NoError(t, f.kv.Append(ctx, f.sessionID,
			model.ChatEntry{Role: model.RoleHuman, Content: "earlier question"},
			model.ChatEntry{Role: model.RoleAssistant, Content: "earlier answer"},
		))

		_, err := f.uc.Turn(ctx, chatuc.TurnInput{
			UserID: f.userID, SessionID: f.sessionID, Message: "followup",
		})
		gt.NoError(t, err)
		gt.V(t, len(seen)).Equal(2)
		gt.V(t, seen[0].Content).Equal("earlier question")
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		f := setup(t, &mockPipeline{})
		_, err := f.uc.Turn(ctx, chatuc.TurnInput{UserID: f.userID, SessionID: f.sessionID})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})

	t.Run("unknown session", func(t *testing.T) {
		f := setup(t, &mockPipeline{})
		_, err := f.uc.Turn(ctx, chatuc.TurnInput{
			UserID: f.userID, SessionID: model.NewSessionID(), Message: "hello",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("pipeline failure leaves no partial state", func(t *testing.T) {
		f := setup(t, &mockPipeline{
			invokeFunc: func(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
				return "", goerr.Wrap(model.ErrPipelineExecution, "query execution failed")
			},
		})

		_, err := f.uc.Turn(ctx, chatuc.TurnInput{
			UserID: f.userID, SessionID: f.sessionID, Message: "bad question",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrPipelineExecution))

		// Nothing was written: no history entries, no audit record.
		gt.V(t, len(f.kv.entries(f.sessionID))).Equal(0)
		gt.V(t, len(f.repo.messages)).Equal(0)
		gt.V(t, len(f.repo.touched)).Equal(0)
	})

	t.Run("audit insert failure fails the turn", func(t *testing.T) {
		f := setup(t, &mockPipeline{})
		f.repo.insertErr = goerr.Wrap(model.ErrDurablePersistence, "write concern failed")

		_, err := f.uc.Turn(ctx, chatuc.TurnInput{
			UserID: f.userID, SessionID: f.sessionID, Message: "hello",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrDurablePersistence))
	})

	t.Run("concurrent turns on one session stay serialized", func(t *testing.T) {
		var active, maxActive int32
		var mu sync.Mutex
		f := setup(t, &mockPipeline{
			invokeFunc: func(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return strings.ToUpper(message), nil
			},
		})

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.uc.Turn(ctx, chatuc.TurnInput{
					UserID: f.userID, SessionID: f.sessionID, Message: "hello",
				})
				gt.NoError(t, err)
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		gt.V(t, maxActive).Equal(int32(1))
	})
}
