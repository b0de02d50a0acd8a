// Package lock implements ports.DistributedLock over Redis, the
// per-inbox poll lock spec.md §5 calls out (the distributed_locks table
// is used by neither this nor the in-memory fallback; the real
// deployment target is Redis).
package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oxidesk/deskcore/domain/ports"
)

// releaseScript only deletes the key if it's still held by owner,
// the standard SETNX-lock release idiom: a blind DEL would release a
// lock some other owner acquired after this one's TTL expired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLock is a ports.DistributedLock backed by a single redis.Client.
type RedisLock struct {
	client *redis.Client
}

func New(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// Acquire is a SET key owner NX EX ttl: it succeeds only if the key was
// absent or already expired.
func (l *RedisLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, key, owner string) error {
	return l.client.Eval(ctx, releaseScript, []string{key}, owner).Err()
}

var _ ports.DistributedLock = (*RedisLock)(nil)
