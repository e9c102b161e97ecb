package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "skillrelay"

// RedisStorage stores documents as JSON strings under a key prefix, with an
// optional TTL refreshed on every write.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithTTL expires documents ttl after their last write. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStorage) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "skillrelay".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		s.prefix = prefix
	}
}

// NewRedisStorage creates a Redis-backed store.
//
// Example:
//
//	store := NewRedisStorage(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(24 * time.Hour),
//	)
func NewRedisStorage(client *redis.Client, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Read implements Storage with a single MGET.
func (s *RedisStorage) Read(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // nil means the key does not exist
		}
		out[keys[i]] = json.RawMessage(str)
	}
	return out, nil
}

// Write implements Storage. All SETs go out in one pipeline.
func (s *RedisStorage) Write(ctx context.Context, changes map[string]any) error {
	encoded, err := encode(changes)
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for k, v := range encoded {
		pipe.Set(ctx, s.key(k), v, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Delete implements Storage.
func (s *RedisStorage) Delete(ctx context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping implements Pinger.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
