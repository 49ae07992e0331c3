package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/valetiq/valet/pkg/schema"
)

// RedisStore implements Store on a Redis keyspace. Each logical key is
// namespaced so several deployments can share one Redis.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addrs     []string
	Namespace string
}

// NewRedisStore connects a RedisStore using the universal client, which
// covers single-node, sentinel and cluster addressing.
func NewRedisStore(conf RedisConfig) *RedisStore {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: conf.Addrs,
	})
	return &RedisStore{client: client, namespace: conf.Namespace}
}

func (s *RedisStore) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, schema.NewError(schema.ErrCodeStore, "redis get failed").WithCause(err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return schema.NewError(schema.ErrCodeStore, "redis set failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return schema.NewError(schema.ErrCodeStore, "redis del failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) PushRecent(ctx context.Context, key, value string, limit int, ttl time.Duration) error {
	k := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, k, value)
	pipe.LTrim(ctx, k, 0, int64(limit-1))
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return schema.NewError(schema.ErrCodeStore, "redis push failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "redis lrange failed").WithCause(err)
	}
	return vals, nil
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(pattern), 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if s.namespace != "" {
			k = k[len(s.namespace)+1:]
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "redis scan failed").WithCause(err)
	}
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
