package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/adapter"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/neuraly-ai/neuraly/pkg/utils/logging"
)

const (
	defaultMaxPairs  = 5
	defaultMaxTokens = 800
)

// Store enforces the bounded-memory policy over the fast message store.
// Two simultaneous caps apply after every appended exchange: a maximum
// number of retained message pairs and a maximum total token count.
type Store struct {
	kv        adapter.MessageStore
	maxPairs  int
	maxTokens int
	count     TokenCounter

	// bestEffort lets a chat turn proceed when limit enforcement fails
	// because the fast store became unreachable mid-turn. Off by
	// default: unbounded memory growth is worse than a failed turn.
	bestEffort bool
}

type Option func(*Store)

func WithMaxPairs(n int) Option {
	return func(s *Store) {
		s.maxPairs = n
	}
}

func WithMaxTokens(n int) Option {
	return func(s *Store) {
		s.maxTokens = n
	}
}

func WithTokenCounter(count TokenCounter) Option {
	return func(s *Store) {
		s.count = count
	}
}

func WithBestEffort(enabled bool) Option {
	return func(s *Store) {
		s.bestEffort = enabled
	}
}

// New creates a bounded conversation store over the given fast store.
func New(kv adapter.MessageStore, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		maxPairs:  defaultMaxPairs,
		maxTokens: defaultMaxTokens,
		count:     EstimateTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Conversation binds the store to one session's history.
func (s *Store) Conversation(sessionID model.SessionID) *Conversation {
	return &Conversation{store: s, sessionID: sessionID}
}

// EnforceLimits applies both caps to the stored history and writes the
// truncated list back in a single replace.
//
// The two caps deliberately trim from opposite ends: the pair cap drops
// the oldest entries, the token cap drops the newest. Clients depend on
// this asymmetry and tests pin it; do not "fix" it silently.
func (s *Store) EnforceLimits(ctx context.Context, sessionID model.SessionID) error {
	entries, err := s.kv.Range(ctx, sessionID)
	if err != nil {
		return err
	}

	// Pair cap: drop the oldest entries until maxPairs pairs remain.
	if pairs := len(entries) / 2; pairs > s.maxPairs {
		entries = entries[2*(pairs-s.maxPairs):]
	}

	totalTokens := 0
	for _, entry := range entries {
		totalTokens += s.count(entry.Content)
	}

	// Token cap: drop pairs from the newest end. Stops once fewer than
	// two entries remain; a single dangling entry is never truncated.
	for totalTokens > s.maxTokens && len(entries) >= 2 {
		for range 2 {
			last := entries[len(entries)-1]
			totalTokens -= s.count(last.Content)
			entries = entries[:len(entries)-1]
		}
	}

	if err := s.kv.Replace(ctx, sessionID, entries); err != nil {
		return err
	}
	return nil
}

// Conversation is a handle on one session's bounded history. An empty
// conversation is valid; the handle does not require stored data.
type Conversation struct {
	store     *Store
	sessionID model.SessionID
}

func (c *Conversation) SessionID() model.SessionID {
	return c.sessionID
}

// Messages returns the stored history, oldest first.
func (c *Conversation) Messages(ctx context.Context) ([]model.ChatEntry, error) {
	return c.store.kv.Range(ctx, c.sessionID)
}

// AppendExchange stores one human/assistant pair and enforces the memory
// limits. The caps are guaranteed to hold before the next read unless
// best-effort mode is enabled and the fast store fails mid-enforcement.
func (c *Conversation) AppendExchange(ctx context.Context, userMessage, botResponse string) error {
	err := c.store.kv.Append(ctx, c.sessionID,
		model.ChatEntry{Role: model.RoleHuman, Content: userMessage},
		model.ChatEntry{Role: model.RoleAssistant, Content: botResponse},
	)
	if err != nil {
		return goerr.Wrap(err, "failed to append exchange", goerr.V("session_id", c.sessionID))
	}

	if err := c.store.EnforceLimits(ctx, c.sessionID); err != nil {
		if c.store.bestEffort {
			logging.From(ctx).Warn("memory limit enforcement skipped",
				"session_id", c.sessionID, "error", err)
			return nil
		}
		return goerr.Wrap(err, "failed to enforce memory limits", goerr.V("session_id", c.sessionID))
	}
	return nil
}
