package registry

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/pipeline"
)

// credentialPattern is the fixed syntactic format of a pipeline
// credential. An empty credential skips validation and fails later at
// pipeline construction instead.
var credentialPattern = regexp.MustCompile(`^sk-(proj-)?[a-zA-Z0-9]{48}$`)

// PipelineFactory constructs the query pipeline for an agent. It may
// perform network and database handshakes.
type PipelineFactory func(ctx context.Context, connStr, credential string) (pipeline.Pipeline, error)

// Agent is a live registry entry: a pipeline bound to one database
// connection, plus its last-access timestamp.
type Agent struct {
	ID       model.AgentID
	Pipeline pipeline.Pipeline
	LastUsed time.Time
}

// AgentRegistry is a concurrency-safe cache of live agents, keyed by
// agent ID. It owns pipeline construction and the cascade eviction of
// dependent sessions. The durable user documents remain the source of
// truth; this cache is rebuildable from them at any time.
type AgentRegistry struct {
	mu       sync.Mutex
	agents   map[model.AgentID]*Agent
	sessions *SessionRegistry
	build    PipelineFactory
}

func NewAgentRegistry(sessions *SessionRegistry, build PipelineFactory) *AgentRegistry {
	return &AgentRegistry{
		agents:   make(map[model.AgentID]*Agent),
		sessions: sessions,
		build:    build,
	}
}

// AddAgent constructs a pipeline for the connection and inserts it under
// the given ID. Idempotent: a present ID is a no-op, even when racing.
// The pipeline is constructed outside the lock so slow handshakes do not
// block unrelated lookups; a construction failure inserts nothing.
func (r *AgentRegistry) AddAgent(ctx context.Context, id model.AgentID, connStr, credential string) error {
	r.mu.Lock()
	_, exists := r.agents[id]
	r.mu.Unlock()
	if exists {
		return nil
	}

	if credential != "" && !credentialPattern.MatchString(credential) {
		return goerr.Wrap(model.ErrInvalidCredentialFormat, "credential does not match expected format",
			goerr.V("agent_id", id))
	}

	p, err := r.build(ctx, connStr, credential)
	if err != nil {
		if errors.Is(err, model.ErrAgentConstruction) {
			return err
		}
		return goerr.Wrap(model.ErrAgentConstruction, "pipeline construction failed",
			goerr.V("agent_id", id), goerr.V("cause", err.Error()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; exists {
		// Lost the race to a concurrent insert; first one wins.
		return nil
	}
	r.agents[id] = &Agent{
		ID:       id,
		Pipeline: p,
		LastUsed: time.Now().UTC(),
	}
	return nil
}

// GetAgent returns the live agent for the ID, if present.
func (r *AgentRegistry) GetAgent(id model.AgentID) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// UpdateLastUsed refreshes the last-access timestamp. No-op when absent.
func (r *AgentRegistry) UpdateLastUsed(id model.AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		agent.LastUsed = time.Now().UTC()
	}
}

// RemoveAgent evicts the agent and cascades to every session referencing
// it. No-op when absent.
func (r *AgentRegistry) RemoveAgent(id model.AgentID) {
	r.mu.Lock()
	_, exists := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()

	// Cascade outside our own lock; the session registry never calls
	// back into this one, so lock ordering stays one-directional.
	if exists {
		r.sessions.RemoveSessionsByAgent(id)
	}
}

// Size reports the number of live agents.
func (r *AgentRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}
