package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore backs the run state with Redis so nodes executing in different
// processes can share it. Values are stored JSON-encoded under a per-run key
// prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to Redis using the given URL (redis://...) and
// scopes all keys with prefix.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (any, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return nil, ErrKeyNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read state key %s: %w", key, err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to decode state key %s: %w", key, err)
	}

	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state key %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.key(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write state key %s: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete state key %s: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.client.Keys(ctx, s.prefix+":*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.prefix+":"))
	}

	return keys, nil
}

func (s *RedisStore) Snapshot(ctx context.Context) (map[string]any, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]any, len(keys))

	for _, k := range keys {
		value, err := s.Get(ctx, k)
		if err == ErrKeyNotFound {
			continue
		}

		if err != nil {
			return nil, err
		}

		snapshot[k] = value
	}

	return snapshot, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
