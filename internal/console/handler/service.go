package handler

import (
	"context"

	"github.com/xela07ax/sloguard/internal/domain"
)

// MonitorService Описываем, что нам нужно от монитора (реализует engine.Monitor)
type MonitorService interface {
	RecordMeasurement(ctx context.Context, series string, c domain.Counters) error
	GetStatus(series string) (domain.StatusView, error)
	GetStatuses() []domain.StatusView
	GetActiveAlerts() []domain.ActiveAlert
	ResolveAlert(ctx context.Context, id string) error
}
