package adapter

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"github.com/redis/go-redis/v9"
)

const memoryKeyPrefix = "message_store:"

// RedisStore implements MessageStore on a Redis list per session.
type RedisStore struct {
	client *redis.Client
}

type RedisOption func(*redis.Options)

func WithRedisPassword(password string) RedisOption {
	return func(o *redis.Options) {
		o.Password = password
	}
}

func WithRedisDB(db int) RedisOption {
	return func(o *redis.Options) {
		o.DB = db
	}
}

// NewRedis creates a Redis-backed message store and verifies the connection.
func NewRedis(ctx context.Context, addr string, opts ...RedisOption) (*RedisStore, error) {
	options := &redis.Options{Addr: addr}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, goerr.Wrap(model.ErrMemoryStoreUnavailable, "failed to ping redis", goerr.V("addr", addr))
	}

	return &RedisStore{client: client}, nil
}

func memoryKey(sessionID model.SessionID) string {
	return memoryKeyPrefix + string(sessionID)
}

func (s *RedisStore) Range(ctx context.Context, sessionID model.SessionID) ([]model.ChatEntry, error) {
	raw, err := s.client.LRange(ctx, memoryKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, goerr.Wrap(model.ErrMemoryStoreUnavailable, "failed to fetch message list",
			goerr.V("session_id", sessionID))
	}

	entries := make([]model.ChatEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.ChatEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal chat entry", goerr.V("session_id", sessionID))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID model.SessionID, entries ...model.ChatEntry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal chat entry")
		}
		values = append(values, data)
	}

	if err := s.client.RPush(ctx, memoryKey(sessionID), values...).Err(); err != nil {
		return goerr.Wrap(model.ErrMemoryStoreUnavailable, "failed to append message entries",
			goerr.V("session_id", sessionID))
	}
	return nil
}

// Replace swaps the whole list in one transactional pipeline so a
// concurrent reader never observes a partially truncated history.
func (s *RedisStore) Replace(ctx context.Context, sessionID model.SessionID, entries []model.ChatEntry) error {
	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal chat entry")
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, memoryKey(sessionID))
	if len(values) > 0 {
		pipe.RPush(ctx, memoryKey(sessionID), values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return goerr.Wrap(model.ErrMemoryStoreUnavailable, "failed to replace message list",
			goerr.V("session_id", sessionID))
	}
	return nil
}
