package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "identity:session:"

	// Persisted state older than this is stale by definition; the restore
	// path would discard it anyway after re-validation.
	defaultTTL = 30 * 24 * time.Hour
)

// RedisStore implements Store on top of Redis, one JSON document per principal.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: defaultTTL}
}

func (s *RedisStore) Load(ctx context.Context, principalID string) (State, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+principalID).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// A corrupt document is treated as absent; it will be rewritten on
		// the next state transition.
		return State{}, false, nil
	}
	return st, true, nil
}

func (s *RedisStore) Save(ctx context.Context, principalID string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+principalID, raw, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, principalID string) error {
	return s.client.Del(ctx, keyPrefix+principalID).Err()
}
