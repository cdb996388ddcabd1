package adapter

import (
	"context"

	"github.com/neuraly-ai/neuraly/pkg/model"
)

// MessageStore is the fast external key-value store backing the bounded
// conversation history. One list per session, oldest entry at index 0.
// Implementations report unreachable backends as
// model.ErrMemoryStoreUnavailable.
type MessageStore interface {
	// Range fetches the full ordered entry list for a session
	Range(ctx context.Context, sessionID model.SessionID) ([]model.ChatEntry, error)

	// Append adds entries to the newest end of the session list
	Append(ctx context.Context, sessionID model.SessionID, entries ...model.ChatEntry) error

	// Replace atomically swaps the session list for the given entries
	Replace(ctx context.Context, sessionID model.SessionID, entries []model.ChatEntry) error
}
