package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLimiter shares a fixed window across instances via INCR + EXPIRE.
// A redis failure fails open: blocking all traffic because the counter store
// is down hurts more than briefly losing the limit.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	period time.Duration
	log    *zap.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, period time.Duration, log *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, period: period, log: log}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Incr(ctx, "rl:"+key).Result()
	if err != nil {
		l.log.Warn("rate limiter unavailable, failing open", zap.Error(err))
		return true, nil
	}

	if count == 1 {
		l.client.Expire(ctx, "rl:"+key, l.period)
	}

	return count <= int64(l.limit), nil
}
