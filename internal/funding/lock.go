package funding

import (
	"context"
	"time"

	"sms-gateway/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Locker single-flights work on a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// RedisLocker takes SET NX locks. A held lock surfaces as utils.ErrLockHeld.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	return utils.AcquireLock(ctx, l.rdb, key, ttl)
}

func confirmLockKey(txRef string) string { return "funding:confirm:" + txRef }
