package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestIdempotencyCache_SetAndGet(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	key := "deposit:6f1c0a1e-0000-4000-8000-000000000001:BRANCH-0042"
	value := []byte(`"0190a1b2-c3d4-7e5f-8071-8293a4b5c6d7"`)

	result, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, cache.Set(ctx, key, value, 24*time.Hour))

	result, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestIdempotencyCache_TTLExpiry(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "deposit:a:REF-1", []byte("x"), time.Second))
	s.FastForward(2 * time.Second)

	result, err := cache.Get(ctx, "deposit:a:REF-1")
	assert.NoError(t, err)
	assert.Nil(t, result, "expired key should return nil")
}

func TestIdempotencyCache_KeysArePrefixed(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewIdempotencyCache(client)

	require.NoError(t, cache.Set(context.Background(), "deposit:a:REF-2", []byte("y"), time.Hour))
	assert.True(t, s.Exists("ledger:idempotency:deposit:a:REF-2"))
}

func TestIdempotencyCache_ServerDown(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	s.Close()

	_, err := cache.Get(context.Background(), "deposit:a:REF-3")
	assert.Error(t, err)
}
