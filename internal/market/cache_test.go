package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "price:SOL", []byte("one"), 30*time.Second))

	got, ok := store.Get(ctx, "price:SOL", 30*time.Second)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), got)

	current = current.Add(29 * time.Second)
	_, ok = store.Get(ctx, "price:SOL", 30*time.Second)
	assert.True(t, ok)

	current = current.Add(2 * time.Second)
	_, ok = store.Get(ctx, "price:SOL", 30*time.Second)
	assert.False(t, ok, "entry older than ttl must miss")
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()
	_, ok := store.Get(context.Background(), "price:RAY", time.Minute)
	assert.False(t, ok)
}

func TestMemoryStorePurge(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "old", []byte("x"), time.Minute))
	current = current.Add(2 * time.Hour)
	require.NoError(t, store.Set(ctx, "new", []byte("y"), time.Minute))

	removed := store.Purge(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(ctx, "new", time.Minute)
	assert.True(t, ok)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "", zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Set(ctx, "price:SOL", []byte(`{"price":"100"}`), 30*time.Second))

	got, ok := store.Get(ctx, "price:SOL", 30*time.Second)
	require.True(t, ok)
	assert.JSONEq(t, `{"price":"100"}`, string(got))

	mr.FastForward(31 * time.Second)
	_, ok = store.Get(ctx, "price:SOL", 30*time.Second)
	assert.False(t, ok, "redis must expire the key at its ttl")
}

func TestRedisStoreDegradedReturnsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "", zerolog.Nop())

	mr.Close()

	_, ok := store.Get(context.Background(), "price:SOL", time.Minute)
	assert.False(t, ok, "a degraded redis must read as a cache miss")
	assert.Error(t, store.Set(context.Background(), "price:SOL", []byte("x"), time.Minute))
}
