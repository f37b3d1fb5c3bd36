package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "aura:"

// RedisKV stores values as plain redis strings without expiry.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV wraps an existing client. An empty prefix uses "aura:".
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisKV{client: client, prefix: prefix}
}

// Get implements KV.
func (s *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements KV.
func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

// Delete implements KV.
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close implements KV.
func (s *RedisKV) Close() error {
	return s.client.Close()
}

func (s *RedisKV) key(key string) string {
	return s.prefix + key
}
