package queue

import (
	"context"
	"fmt"
	"time"

	"tle_zone_judge/internal/common"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release only deletes the key while we still own it.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

type Lock struct {
	rdb   *redis.Client
	key   string
	value string
}

// AcquireLock returns common.ErrJobLockFailed when someone else holds key.
func AcquireLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	value := uuid.NewString()
	ok, err := rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, common.ErrJobLockFailed
	}
	return &Lock{rdb: rdb, key: key, value: value}, nil
}

// Release reports whether the lock was still held.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	deleted, err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.value).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return deleted == 1, nil
}
