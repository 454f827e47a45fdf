package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if it is still held by owner.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseLock implements ports.LeaseLock with SET NX PX. A lease expires on
// its own if the holder dies before releasing it.
type LeaseLock struct {
	client *goredis.Client
	prefix string
}

// NewLeaseLock creates a new Redis-backed lease lock.
func NewLeaseLock(client *goredis.Client) *LeaseLock {
	return &LeaseLock{
		client: client,
		prefix: "ledger:lease:",
	}
}

// Acquire returns true if owner now holds the lease.
func (l *LeaseLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.prefix+key, owner, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lease acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the lease. Releasing a lease held by someone else, or one
// that already expired, is a no-op.
func (l *LeaseLock) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, owner).Err(); err != nil {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
