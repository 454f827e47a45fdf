package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseLock_AcquireIsExclusive(t *testing.T) {
	_, client := newTestClient(t)
	lock := NewLeaseLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "outbox-relay", "node-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "outbox-relay", "node-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease is held by node-a")
}

func TestLeaseLock_ReleaseOnlyByOwner(t *testing.T) {
	s, client := newTestClient(t)
	lock := NewLeaseLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "outbox-relay", "node-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "outbox-relay", "node-b"))
	assert.True(t, s.Exists("ledger:lease:outbox-relay"), "foreign release must not drop the lease")

	require.NoError(t, lock.Release(ctx, "outbox-relay", "node-a"))
	assert.False(t, s.Exists("ledger:lease:outbox-relay"))

	ok, err = lock.Acquire(ctx, "outbox-relay", "node-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseLock_Expires(t *testing.T) {
	s, client := newTestClient(t)
	lock := NewLeaseLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "interest", "node-a", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(6 * time.Second)

	ok, err = lock.Acquire(ctx, "interest", "node-b", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease can be taken over")
}
