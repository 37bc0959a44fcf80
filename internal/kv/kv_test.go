package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name  string
	store Store
	// advance moves backend time forward so TTLs elapse.
	advance func(time.Duration)
}

func backends(t *testing.T) []backend {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return []backend{
		{
			name:    "redis",
			store:   NewRedis(rdb, "test"),
			advance: mr.FastForward,
		},
		{
			name:    "memory",
			store:   NewMemory("test"),
			advance: func(d time.Duration) { time.Sleep(d) },
		},
	}
}

func TestStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			_, err := b.store.Get(ctx, "missing")
			require.True(t, IsNotFound(err), "expected not found, got %v", err)

			require.NoError(t, b.store.Set(ctx, "k", "v", 0))
			got, err := b.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", got)

			ok, err := b.store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, b.store.Delete(ctx, "k"))
			ok, err = b.store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreTTLExpires(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			require.NoError(t, b.store.Set(ctx, "short", "v", 50*time.Millisecond))
			b.advance(100 * time.Millisecond)

			ok, err := b.store.Exists(ctx, "short")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreSetManyAndIncr(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			require.NoError(t, b.store.SetMany(ctx, map[string]string{"a": "1", "b": "2"}, time.Minute))
			a, err := b.store.Get(ctx, "a")
			require.NoError(t, err)
			bv, err := b.store.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, "1", a)
			assert.Equal(t, "2", bv)

			n, err := b.store.Incr(ctx, "gen")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			n, err = b.store.Incr(ctx, "gen")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			s, err := b.store.Get(ctx, "gen")
			require.NoError(t, err)
			assert.Equal(t, "2", s)
		})
	}
}

func TestRedisPrefixIsApplied(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedis(rdb, "tenantauth")
	require.NoError(t, s.Set(context.Background(), "token:blacklist:abc", "1", time.Minute))
	assert.True(t, mr.Exists("tenantauth:token:blacklist:abc"))
}

func TestNewFallsBackToMemory(t *testing.T) {
	s, err := New(context.Background(), Config{Driver: "unknown"})
	require.NoError(t, err)
	_, ok := s.(*Memory)
	assert.True(t, ok)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := DialRedis(context.Background(), Config{Addr: mr.Addr(), Prefix: "p"})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}
