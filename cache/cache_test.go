package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client)
}

func TestRedisCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	_, found, err := c.Get(ctx, PrefixEntity+"alice")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, PrefixEntity+"alice", []byte("payload"), time.Minute))
	data, found, err := c.Get(ctx, PrefixEntity+"alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, c.Delete(ctx, PrefixEntity+"alice"))
	_, found, err = c.Get(ctx, PrefixEntity+"alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCacheClearByPrefix(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, PrefixQuery+"q1", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, PrefixQuery+"q2", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, PrefixEntity+"e1", []byte("c"), 0))

	require.NoError(t, c.ClearByPrefix(ctx, PrefixQuery))

	_, found, _ := c.Get(ctx, PrefixQuery+"q1")
	assert.False(t, found)
	_, found, _ = c.Get(ctx, PrefixEntity+"e1")
	assert.True(t, found)
}

func TestNoOpCacheNeverAffectsCorrectness(t *testing.T) {
	ctx := context.Background()
	var c Cache = NoOpCache{}
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
