package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// lockScript takes a free key, or refreshes the lease when the caller
// already holds it.
var lockScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a cross-process Locker built on SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithKeyPrefix replaces the default "lock:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{client: client, prefix: "lock:"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ms := max(ttl.Milliseconds(), 1)
	n, err := lockScript.Run(ctx, l.client, []string{l.prefix + key}, owner, ms).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, owner string) error {
	return unlockScript.Run(ctx, l.client, []string{l.prefix + key}, owner).Err()
}
