package httpapi

import (
	"context"
	"errors"
	"time"

	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyUploads = errors.New("too many bulk uploads in progress")

// UploadLimiter bounds concurrent bulk uploads of one tenant.
type UploadLimiter interface {
	Acquire(ctx context.Context, tenantID string) (release func(), err error)
}

// RedisUploadLimiter shares the cap across API instances. The slot expires
// after ttl so a crashed instance cannot pin it.
type RedisUploadLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisUploadLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisUploadLimiter {
	return &RedisUploadLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisUploadLimiter) Acquire(ctx context.Context, tenantID string) (func(), error) {
	key := "sms:bulk:inflight:" + tenantID
	ok, err := utils.AcquireConcurrencyCap(ctx, l.rdb, key, l.limit, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTooManyUploads
	}
	return func() {
		if err := utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), l.rdb, key); err != nil {
			logger.From(ctx).Warn("release upload slot", "tenant_id", tenantID, "err", err)
		}
	}, nil
}
