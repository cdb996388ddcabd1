package repository

import (
	"context"
	"time"

	"github.com/neuraly-ai/neuraly/pkg/model"
)

// Repository defines the durable document store. User documents embed
// agent/session sub-documents and a list of provisioned database names;
// the messages collection is an append-only audit log of chat exchanges.
type Repository interface {
	// CreateUser inserts a new user document. Returns
	// model.ErrDuplicateResource when username or email is taken.
	CreateUser(ctx context.Context, user *model.User) error

	// GetUser retrieves a user document by ID
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)

	// FindUserByLogin retrieves a user by username or email
	FindUserByLogin(ctx context.Context, usernameOrEmail string) (*model.User, error)

	// ListUsers returns a snapshot of all user documents. Used once at
	// startup to rebuild the in-memory registries.
	ListUsers(ctx context.Context) ([]*model.User, error)

	// UpsertAPIKeys stores pipeline credentials for a user
	UpsertAPIKeys(ctx context.Context, keys *model.APIKeys) error

	// GetAPIKeys retrieves pipeline credentials for a user
	GetAPIKeys(ctx context.Context, id model.UserID) (*model.APIKeys, error)

	// AddAgent pushes an agent sub-document onto the user record
	AddAgent(ctx context.Context, userID model.UserID, agent model.AgentRecord) error

	// RemoveAgent pulls the agent sub-document from the user record
	RemoveAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error

	// AddSession pushes a session sub-document onto the user record
	AddSession(ctx context.Context, userID model.UserID, session model.SessionRecord) error

	// RemoveSession pulls the session sub-document from the user record
	RemoveSession(ctx context.Context, userID model.UserID, sessionID model.SessionID) error

	// RemoveSessionsByAgent pulls every session referencing the agent
	RemoveSessionsByAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error

	// RenameSession updates the session_name of an embedded session
	RenameSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, name string) error

	// TouchAgent updates last_used of an embedded agent
	TouchAgent(ctx context.Context, userID model.UserID, agentID model.AgentID, at time.Time) error

	// TouchSession updates last_used of an embedded session
	TouchSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, at time.Time) error

	// AddDatabase records a provisioned database name on the user record
	AddDatabase(ctx context.Context, userID model.UserID, name string) error

	// RemoveDatabase removes a provisioned database name from the user record
	RemoveDatabase(ctx context.Context, userID model.UserID, name string) error

	// HasDatabase reports whether the user owns the named database
	HasDatabase(ctx context.Context, userID model.UserID, name string) (bool, error)

	// InsertMessage appends one exchange to the audit log
	InsertMessage(ctx context.Context, msg *model.Message) error

	// EnsureIndexes creates the collections' unique indexes
	EnsureIndexes(ctx context.Context) error

	// Close releases the underlying client
	Close(ctx context.Context) error
}
