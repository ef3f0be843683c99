package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLease — распределенная блокировка тика (SetNX с TTL). Ключ не снимается вручную:
// он истекает сам через ttl, поэтому за интервал оценку выполняет ровно одна реплика.
type RedisLease struct {
	rdb   redis.UniversalClient
	key   string
	owner string
	ttl   time.Duration
}

func NewRedisLease(rdb redis.UniversalClient, key, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{rdb: rdb, key: key, owner: owner, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: lease %s: %w", l.key, err)
	}
	return ok, nil
}
