package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSeries   = errors.New("unknown series")
	ErrNoData          = errors.New("no measurements for series yet")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrOutOfOrder      = errors.New("measurement is older than the latest one")
	ErrInvalidCounters = errors.New("invalid counters")
	ErrIngestDisabled  = errors.New("ingestion is disabled for the configured counter source")
)

// ConfigurationError — фатальная ошибка конфигурации. Сервис не стартует на дефолтах.
type ConfigurationError struct {
	Target string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration: target %q: %s: %s", e.Target, e.Field, e.Reason)
}

// CollectionError — источник счетчиков недоступен. Пропускаем только эту серию на текущем тике.
type CollectionError struct {
	Series string
	Err    error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection failed for series %q: %v", e.Series, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// NotificationError — канал оповещения недоступен. Состояние алерта все равно меняется.
type NotificationError struct {
	AlertID string
	Sink    string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s via %s failed: %v", e.AlertID, e.Sink, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
