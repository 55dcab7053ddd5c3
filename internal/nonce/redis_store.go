package nonce

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the registry with redis so nonces survive process restarts
// and are shared across instances. Consume relies on GETDEL for atomicity.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(value string) string {
	return "nonce:" + value
}

func (s *RedisStore) Save(ctx context.Context, value string, issuedAt time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, key(value), strconv.FormatInt(issuedAt.UnixNano(), 10), ttl).Err()
}

func (s *RedisStore) Consume(ctx context.Context, value string) (time.Time, bool, error) {
	raw, err := s.client.GetDel(ctx, key(value)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt nonce record: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}
