package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/sloguard/internal/domain"
	"go.uber.org/zap"
)

// ParseAlertKey разбирает сигнал формата "series:level". Имя серии может содержать ':'.
func ParseAlertKey(payload string) (domain.AlertKey, bool) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 || i == len(payload)-1 {
		return domain.AlertKey{}, false
	}
	level := domain.AlertLevel(payload[i+1:])
	if level != domain.LevelWarning && level != domain.LevelCritical {
		return domain.AlertKey{}, false
	}
	return domain.AlertKey{Series: payload[:i], Level: level}, true
}

// ListenResolveSignals — "живучая" подписка на сигналы ручного снятия алертов из Redis.
// Переподключается при обрыве, пока не отменен ctx.
func ListenResolveSignals(
	ctx context.Context,
	rdb redis.UniversalClient,
	logger *zap.Logger,
	channel string,
	onMessage func(key domain.AlertKey), // Callback для обработки сообщения
) {
	logger = logger.With(zap.String("mod", "resolve-signal"), zap.String("chan", channel))

	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}
		logger.Info("subscribed")

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				key, valid := ParseAlertKey(msg.Payload)
				if !valid {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}
				onMessage(key)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// ListenResolveSignals подключает монитор к каналу сигналов
func (m *Monitor) ListenResolveSignals(ctx context.Context, rdb redis.UniversalClient, channel string) {
	ListenResolveSignals(ctx, rdb, m.logger, channel, func(key domain.AlertKey) {
		if err := m.ResolveKey(ctx, key); err != nil {
			m.logger.Debug("resolve signal ignored", zap.String("key", key.String()), zap.Error(err))
		}
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
