package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "shopgate:oauth_state:"

// RedisStore はRedisを使用したStore。複数インスタンス構成で使用する。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save はstateをJSONでSET EXする。
func (s *RedisStore) Save(ctx context.Context, state string, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Consume はGETDELでstateを原子的に取り出す。
func (s *RedisStore) Consume(ctx context.Context, state string) (Entry, error) {
	b, err := s.client.GetDel(ctx, keyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrStateNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load state: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode state: %w", err)
	}
	return entry, nil
}

var _ Store = (*RedisStore)(nil)
