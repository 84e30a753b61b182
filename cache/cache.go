// Package cache implements the Cache collaborator (spec §4.12/§6): an
// optional TTL key-value store whose absence must never affect correctness,
// only latency.
//
// RedisCache is grounded on store/redis/redis.go's RedisCheckpointStore —
// same go-redis client and pipelined-delete idiom — generalized from a
// single checkpoint-by-id key scheme to the spec's prefixed key namespaces
// (entity:, community:, query:, retrieval:) and a ClearByPrefix scan.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a TTL key-value collaborator. Get returns (value, found, error).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ClearByPrefix(ctx context.Context, prefix string) error
}

// Key prefixes used across the system, per spec §6.
const (
	PrefixEntity    = "entity:"
	PrefixCommunity = "community:"
	PrefixQuery     = "query:"
	PrefixRetrieval = "retrieval:"
)

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache builds a RedisCache over client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// ClearByPrefix scans for keys under prefix and deletes them in a pipeline,
// the same SCAN-then-pipelined-DEL pattern the teacher uses for execution-
// key set cleanup in RedisCheckpointStore.Clear.
func (c *RedisCache) ClearByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pipe := c.client.Pipeline()
	any := false
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		for _, k := range keys {
			pipe.Del(ctx, k)
			any = true
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if !any {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// NoOpCache always misses and discards writes; used when the cache
// collaborator is absent so calling code never branches on its presence.
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (NoOpCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (NoOpCache) Delete(ctx context.Context, key string) error         { return nil }
func (NoOpCache) ClearByPrefix(ctx context.Context, prefix string) error { return nil }
