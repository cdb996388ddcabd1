package repository

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	usersCollection    = "users"
	apiKeysCollection  = "API_keys"
	messagesCollection = "messages"
)

// Mongo implements Repository on a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// MongoOption is a functional option for the Mongo repository
type MongoOption func(*options.ClientOptions)

// WithPoolSize bounds the driver connection pool
func WithPoolSize(minSize, maxSize uint64) MongoOption {
	return func(o *options.ClientOptions) {
		o.SetMinPoolSize(minSize)
		o.SetMaxPoolSize(maxSize)
	}
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri, database string, opts ...MongoOption) (*Mongo, error) {
	clientOpts := options.Client().ApplyURI(uri)
	for _, opt := range opts {
		opt(clientOpts)
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to MongoDB", goerr.V("uri", uri))
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, goerr.Wrap(model.ErrDurablePersistence, "failed to ping MongoDB")
	}

	return &Mongo{
		client: client,
		db:     client.Database(database),
	}, nil
}

func (r *Mongo) users() *mongo.Collection    { return r.db.Collection(usersCollection) }
func (r *Mongo) apiKeys() *mongo.Collection  { return r.db.Collection(apiKeysCollection) }
func (r *Mongo) messages() *mongo.Collection { return r.db.Collection(messagesCollection) }

func (r *Mongo) EnsureIndexes(ctx context.Context) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "agents.agent_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{
				{Key: "sessions.session_id", Value: 1},
				{Key: "sessions.agent_id", Value: 1},
				{Key: "user_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := r.users().Indexes().CreateMany(ctx, userIndexes); err != nil {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to create user indexes")
	}

	keyIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.apiKeys().Indexes().CreateOne(ctx, keyIndex); err != nil {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to create API key index")
	}

	msgIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}
	if _, err := r.messages().Indexes().CreateOne(ctx, msgIndex); err != nil {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to create message index")
	}

	return nil
}

func (r *Mongo) CreateUser(ctx context.Context, user *model.User) error {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": user.Username},
		bson.M{"email": user.Email},
	}}
	if err := r.users().FindOne(ctx, filter).Err(); err == nil {
		return goerr.Wrap(model.ErrDuplicateResource, "username or email already exists")
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to check existing user")
	}

	if _, err := r.users().InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return goerr.Wrap(model.ErrDuplicateResource, "user already exists")
		}
		return goerr.Wrap(model.ErrDurablePersistence, "failed to insert user")
	}
	return nil
}

func (r *Mongo) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var user model.User
	err := r.users().FindOne(ctx, bson.M{"user_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found", goerr.V("user_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(model.ErrDurablePersistence, "failed to get user")
	}
	return &user, nil
}

func (r *Mongo) FindUserByLogin(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": usernameOrEmail},
		bson.M{"email": usernameOrEmail},
	}}

	var user model.User
	err := r.users().FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, goerr.Wrap(model.ErrDurablePersistence, "failed to find user")
	}
	return &user, nil
}

func (r *Mongo) ListUsers(ctx context.Context) ([]*model.User, error) {
	cursor, err := r.users().Find(ctx, bson.M{})
	if err != nil {
		return nil, goerr.Wrap(model.ErrDurablePersistence, "failed to list users")
	}
	defer cursor.Close(ctx)

	var users []*model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, goerr.Wrap(model.ErrDurablePersistence, "failed to decode users")
	}
	return users, nil
}

func (r *Mongo) UpsertAPIKeys(ctx context.Context, keys *model.APIKeys) error {
	update := bson.M{"$set": bson.M{
		"openai_key":    keys.OpenAIKey,
		"fireworks_key": keys.FireworksKey,
	}}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := r.apiKeys().UpdateOne(ctx, bson.M{"user_id": keys.UserID}, update, opts); err != nil {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to upsert API keys", goerr.V("user_id", keys.UserID))
	}
	return nil
}

func (r *Mongo) GetAPIKeys(ctx context.Context, id model.UserID) (*model.APIKeys, error) {
	var keys model.APIKeys
	err := r.apiKeys().FindOne(ctx, bson.M{"user_id": id}).Decode(&keys)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, goerr.Wrap(model.ErrNotFound, "API keys not found", goerr.V("user_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(model.ErrDurablePersistence, "failed to get API keys")
	}
	return &keys, nil
}

// updateUser applies an update to one user document and maps a zero
// matched-count to ErrNotFound.
func (r *Mongo) updateUser(ctx context.Context, filter, update bson.M, op string) error {
	result, err := r.users().UpdateOne(ctx, filter, update)
	if err != nil {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to "+op)
	}
	if result.MatchedCount == 0 {
		return goerr.Wrap(model.ErrNotFound, op+": no matching user document")
	}
	return nil
}

func (r *Mongo) AddAgent(ctx context.Context, userID model.UserID, agent model.AgentRecord) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$push": bson.M{"agents": agent}},
		"add agent")
}

func (r *Mongo) RemoveAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$pull": bson.M{"agents": bson.M{"agent_id": agentID}}},
		"remove agent")
}

func (r *Mongo) AddSession(ctx context.Context, userID model.UserID, session model.SessionRecord) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$push": bson.M{"sessions": session}},
		"add session")
}

func (r *Mongo) RemoveSession(ctx context.Context, userID model.UserID, sessionID model.SessionID) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$pull": bson.M{"sessions": bson.M{"session_id": sessionID}}},
		"remove session")
}

func (r *Mongo) RemoveSessionsByAgent(ctx context.Context, userID model.UserID, agentID model.AgentID) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$pull": bson.M{"sessions": bson.M{"agent_id": agentID}}},
		"remove sessions by agent")
}

func (r *Mongo) RenameSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, name string) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID, "sessions.session_id": sessionID},
		bson.M{"$set": bson.M{"sessions.$.session_name": name}},
		"rename session")
}

func (r *Mongo) TouchAgent(ctx context.Context, userID model.UserID, agentID model.AgentID, at time.Time) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID, "agents.agent_id": agentID},
		bson.M{"$set": bson.M{"agents.$.last_used": at}},
		"touch agent")
}

func (r *Mongo) TouchSession(ctx context.Context, userID model.UserID, sessionID model.SessionID, at time.Time) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID, "sessions.session_id": sessionID},
		bson.M{"$set": bson.M{"sessions.$.last_used": at}},
		"touch session")
}

func (r *Mongo) AddDatabase(ctx context.Context, userID model.UserID, name string) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$addToSet": bson.M{"databases": name}},
		"add database")
}

func (r *Mongo) RemoveDatabase(ctx context.Context, userID model.UserID, name string) error {
	return r.updateUser(ctx,
		bson.M{"user_id": userID},
		bson.M{"$pull": bson.M{"databases": name}},
		"remove database")
}

func (r *Mongo) HasDatabase(ctx context.Context, userID model.UserID, name string) (bool, error) {
	err := r.users().FindOne(ctx, bson.M{"user_id": userID, "databases": name}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(model.ErrDurablePersistence, "failed to check database ownership")
	}
	return true, nil
}

func (r *Mongo) InsertMessage(ctx context.Context, msg *model.Message) error {
	if _, err := r.messages().InsertOne(ctx, msg); err != nil {
		return goerr.Wrap(model.ErrDurablePersistence, "failed to insert message",
			goerr.V("session_id", msg.SessionID))
	}
	return nil
}

func (r *Mongo) Close(ctx context.Context) error {
	if err := r.client.Disconnect(ctx); err != nil {
		return goerr.Wrap(err, "failed to disconnect MongoDB client")
	}
	return nil
}
