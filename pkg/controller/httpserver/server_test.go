package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/neuraly-ai/neuraly/pkg/controller/httpserver"
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
	return s.lists[sessionID], nil
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

type mockPipeline struct {
	invokeFunc func(ctx context.Context, message string, history []model.ChatEntry) (string, error)
}

func (m *mockPipeline) Invoke(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, message, history)
	}
	return "answer", nil
}

// memoryRepository is a map-backed Repository so the full register/login
// and chat routes can be driven end to end in-process.
type memoryRepository struct {
	mu       sync.Mutex
	users    map[model.UserID]*model.User
	keys     map[model.UserID]*model.APIKeys
	messages []*model.Message
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users: make(map[model.UserID]*model.User),
		keys:  make(map[model.UserID]*model.APIKeys),
	}
}

func (m *memoryRepository) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return goerr.Wrap(model.ErrDuplicateResource, "username or email already exists")
		}
	}
	m.users[user.UserID] = user
	return nil
}

func (m *memoryRepository) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found")
	}
	return user, nil
}

func (m *memoryRepository) FindUserByLogin(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == usernameOrEmail || user.Email == usernameOrEmail {
			return user, nil
		}
	}
	return nil, goerr.Wrap(model.ErrNotFound, "user not found")
}

func (m *memoryRepository) ListUsers(ctx context.Context) ([]*model.User, error) { return nil, nil }

func (m *memoryRepository) UpsertAPIKeys(ctx context.Context, keys *model.APIKeys) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[keys.UserID] = keys
	return nil
}

func (m *memoryRepository) GetAPIKeys(ctx context.Context, id model.UserID) (*model.APIKeys, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.keys[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "API keys not found")
	}
	return keys, nil
}

func (m *memoryRepository) AddAgent(ctx context.Context, userID model.UserID, agent model.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "user not found")
	}
	user.Agents = append(user.Agents, agent)
	return nil
}

func (m *memoryRepository) RemoveAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return nil
}

func (m *memoryRepository) AddSession(ctx context.Context, userID model.UserID, session model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "user not found")
	}
	user.Sessions = append(user.Sessions, session)
	return nil
}

func (m *memoryRepository) RemoveSession(ctx context.Context, userID model.UserID, sessionID model.SessionID) error {
	return nil
}

func (m *memoryRepository) RemoveSessionsByAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return nil
}

func (m *memoryRepository) RenameSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, name string) error {
	return nil
}

func (m *memoryRepository) TouchAgent(ctx context.Context, userID model.UserID, agentID model.AgentID, at time.Time) error {
	return nil
}

func (m *memoryRepository) TouchSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, at time.Time) error {
	return nil
}

func (m *memoryRepository) AddDatabase(ctx context.Context, userID model.UserID, name string) error {
	return nil
}

func (m *memoryRepository) RemoveDatabase(ctx context.Context, userID model.UserID, name string) error {
	return nil
}

func (m *memoryRepository) HasDatabase(ctx context.Context, userID model.UserID, name string) (bool, error) {
	return false, nil
}

func (m *memoryRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryRepository) EnsureIndexes(ctx context.Context) error { return nil }
func (m *memoryRepository) Close(ctx context.Context) error         { return nil }

type testServer struct {
	repo     *memoryRepository
	agents   *registry.AgentRegistry
	sessions *registry.SessionRegistry
	handler  http.Handler
}

func newTestServer(t *testing.T, p pipeline.Pipeline) *testServer {
	t.Helper()

	repo := newMemoryRepository()
	sessions := registry.NewSessionRegistry(memory.New(newFakeStore()))
	agents := registry.NewAgentRegistry(sessions,
		func(ctx context.Context, connStr, credential string) (pipeline.Pipeline, error) {
			return p, nil
		})
	chat := chatuc.New(repo, agents, sessions)

	srv := httpserver.New(repo, agents, sessions, chat, nil)
	return &testServer{
		repo:     repo,
		agents:   agents,
		sessions: sessions,
		handler:  srv.Router(),
	}
}

func (ts *testServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	gt.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &mockPipeline{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	gt.V(t, rec.Code).Equal(http.StatusOK)
}

func TestRegisterAndLoginRoutes(t *testing.T) {
	ts := newTestServer(t, &mockPipeline{})

	rec := ts.post(t, "/register", map[string]string{
		"username":   "alice",
		"first_name": "Alice",
		"last_name":  "Smith",
		"email":      "alice@example.com",
		"password":   "a long password",
	})
	gt.V(t, rec.Code).Equal(http.StatusOK)
	registered := decodeResponse[map[string]string](t, rec)
	gt.True(t, registered["user_id"] != "")

	t.Run("login sets the user cookie", func(t *testing.T) {
		rec := ts.post(t, "/login", map[string]string{
			"username_or_email": "alice",
			"password":          "a long password",
		})
		gt.V(t, rec.Code).Equal(http.StatusOK)

		cookies := rec.Result().Cookies()
		gt.A(t, cookies).Length(1)
		gt.V(t, cookies[0].Name).Equal("user_id")
		gt.V(t, cookies[0].Value).Equal(registered["user_id"])
		gt.True(t, cookies[0].HttpOnly)
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec := ts.post(t, "/login", map[string]string{
			"username_or_email": "alice",
			"password":          "wrong",
		})
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		rec := ts.post(t, "/register", map[string]string{
			"username":   "alice",
			"first_name": "Alice",
			"last_name":  "Smith",
			"email":      "alice@example.com",
			"password":   "a long password",
		})
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestChatRoute(t *testing.T) {
	t.Run("full turn over HTTP", func(t *testing.T) {
		ts := newTestServer(t, &mockPipeline{
			invokeFunc: func(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
				return "There are 3 orders.", nil
			},
		})

		userID := model.NewUserID()
		agentID := model.NewAgentID()
		sessionID := model.NewSessionID()
		gt.NoError(t, ts.repo.CreateUser(context.Background(), &model.User{UserID: userID, Username: "bob", Email: "bob@example.com"}))
		gt.NoError(t, ts.agents.AddAgent(context.Background(), agentID, "dsn", ""))
		ts.sessions.AddSession(sessionID, agentID)

		rec := ts.post(t, "/chat", map[string]string{
			"user_id":    string(userID),
			"session_id": string(sessionID),
			"message":    "how many orders?",
		})
		gt.V(t, rec.Code).Equal(http.StatusOK)

		body := decodeResponse[map[string]string](t, rec)
		gt.V(t, body["response"]).Equal("There are 3 orders.")
		gt.A(t, ts.repo.messages).Length(1)
	})

	t.Run("unknown session maps to 404", func(t *testing.T) {
		ts := newTestServer(t, &mockPipeline{})
		rec := ts.post(t, "/chat", map[string]string{
			"user_id":    string(model.NewUserID()),
			"session_id": string(model.NewSessionID()),
			"message":    "hello",
		})
		gt.V(t, rec.Code).Equal(http.StatusNotFound)
	})

	t.Run("pipeline failure maps to 500 without detail", func(t *testing.T) {
		ts := newTestServer(t, &mockPipeline{
			invokeFunc: func(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
				return "", goerr.Wrap(model.ErrPipelineExecution, "table orders_internal does not exist")
			},
		})

		agentID := model.NewAgentID()
		sessionID := model.NewSessionID()
		gt.NoError(t, ts.agents.AddAgent(context.Background(), agentID, "dsn", ""))
		ts.sessions.AddSession(sessionID, agentID)

		rec := ts.post(t, "/chat", map[string]string{
			"user_id":    string(model.NewUserID()),
			"session_id": string(sessionID),
			"message":    "hello",
		})
		gt.V(t, rec.Code).Equal(http.StatusInternalServerError)

		// The internal failure text stays out of the response body.
		body := decodeResponse[map[string]string](t, rec)
		gt.V(t, body["error"]).Equal("query pipeline failed")
		gt.True(t, !strings.Contains(rec.Body.String(), "orders_internal"))
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		ts := newTestServer(t, &mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestSessionRoutes(t *testing.T) {
	ts := newTestServer(t, &mockPipeline{})
	ctx := context.Background()

	userID := model.NewUserID()
	agentID := model.NewAgentID()
	gt.NoError(t, ts.repo.CreateUser(ctx, &model.User{UserID: userID, Username: "carol", Email: "carol@example.com"}))
	gt.NoError(t, ts.agents.AddAgent(ctx, agentID, "dsn", ""))

	rec := ts.post(t, "/create_session", map[string]string{
		"user_id":  string(userID),
		"agent_id": string(agentID),
	})
	gt.V(t, rec.Code).Equal(http.StatusOK)
	created := decodeResponse[map[string]any](t, rec)
	gt.V(t, created["session_name"]).Equal("New Chat")

	t.Run("session for an unknown agent maps to 404", func(t *testing.T) {
		rec := ts.post(t, "/create_session", map[string]string{
			"user_id":  string(userID),
			"agent_id": string(model.NewAgentID()),
		})
		gt.V(t, rec.Code).Equal(http.StatusNotFound)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/create_session", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		gt.V(t, rec.Code).Equal(http.StatusNoContent)
		gt.True(t, rec.Header().Get("Access-Control-Allow-Origin") != "")
	})
}
