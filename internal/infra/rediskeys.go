package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "sloguard"
)

// Ключи блокировок
const (
	// RedisKeyLockEvaluate — lease тика: оценку за интервал выполняет одна реплика
	RedisKeyLockEvaluate = RedisNamespace + ":lock:evaluate"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAlertEvents — все переходы алертов (fired, renotified, resolved) в JSON
	RedisChanAlertEvents = RedisNamespace + ":alerts:events"
	// RedisChanResolveSignal — ручное снятие алерта, payload "series:level"
	RedisChanResolveSignal = RedisNamespace + ":alerts:resolve-signal"
)

// GetLockKey Генератор ключей для блокировок (если нужны динамические)
func GetLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:%s", RedisNamespace, resource)
}
