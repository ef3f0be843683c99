package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/sloguard/internal/domain"
)

// RedisNotifier транслирует жизненный цикл алертов в Pub/Sub канал для консолей и соседних сервисов.
type RedisNotifier struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisNotifier(rdb redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (r *RedisNotifier) Notify(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis notifier: marshal: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis notifier: publish to %s: %w", r.channel, err)
	}
	return nil
}
