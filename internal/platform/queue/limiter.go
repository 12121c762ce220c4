package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var acquireScript = redis.NewScript(`
local n = redis.call("incr", KEYS[1])
redis.call("pexpire", KEYS[1], ARGV[2])
if n > tonumber(ARGV[1]) then
    redis.call("decr", KEYS[1])
    return 0
end
return 1
`)

var releaseScript = redis.NewScript(`
local n = tonumber(redis.call("get", KEYS[1]) or "0")
if n <= 1 then
    redis.call("del", KEYS[1])
    return 0
end
return redis.call("decr", KEYS[1])
`)

// Limiter counts in-flight jobs per user. The counter expires so a crashed
// worker cannot pin a user at the limit forever.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLimiter(rdb *redis.Client, prefix string, ttl time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *Limiter) key(userID int64) string {
	return fmt.Sprintf("%s:inflight:%d", l.prefix, userID)
}

// Acquire takes one slot if the user holds fewer than max.
func (l *Limiter) Acquire(ctx context.Context, userID int64, max int) (bool, error) {
	ok, err := acquireScript.Run(ctx, l.rdb, []string{l.key(userID)}, max, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("limiter.Acquire: %w", err)
	}
	return ok == 1, nil
}

func (l *Limiter) Release(ctx context.Context, userID int64) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key(userID)}).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("limiter.Release: %w", err)
	}
	return nil
}

func (l *Limiter) InFlight(ctx context.Context, userID int64) (int, error) {
	n, err := l.rdb.Get(ctx, l.key(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
