package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/sloguard/internal/alerting"
	"github.com/xela07ax/sloguard/internal/domain"
	"github.com/xela07ax/sloguard/internal/slo"
	"go.uber.org/zap"
)

// MeasurementHistory — журнал замеров в БД (L2), из которого прогревается MetricStore
type MeasurementHistory interface {
	LoadSince(ctx context.Context, since time.Time) ([]domain.Measurement, error)
}

// Warmup прогревает L1 после рестарта: история замеров, снимки статусов и активные алерты.
// Вызывается до старта планировщика.
func (m *Monitor) Warmup(ctx context.Context, history MeasurementHistory, retention time.Duration) error {
	now := m.clock.Now()

	// 1. История замеров из журнала
	if history != nil {
		ms, err := history.LoadSince(ctx, now.Add(-retention))
		if err != nil {
			return fmt.Errorf("warmup: load measurements: %w", err)
		}
		known := ms[:0]
		for _, item := range ms {
			if _, ok := m.targets[item.Series]; ok {
				known = append(known, item)
			}
		}
		loaded := m.store.Load(known)
		m.logger.Info("measurement history restored", zap.Int("count", loaded))
	}

	// 2. Снимки статусов из последних замеров, чтобы API не отдавал 404 до первого тика
	for _, name := range m.names {
		retained := m.store.Dump(name)
		if len(retained) == 0 {
			continue
		}
		t := m.targets[name]
		last := retained[len(retained)-1]
		var prev *domain.Measurement
		if len(retained) > 1 {
			prev = &retained[len(retained)-2]
		}
		m.publish(t, slo.Evaluation{
			Measurement: last,
			Budget:      slo.Budget(t, last.Value, now),
			Trend:       m.calc.Trend(last.Value, prev),
		})
	}

	// 3. Активные алерты: окно подавления продолжает действовать через рестарт
	if m.alerts != nil {
		alerts, err := m.alerts.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("warmup: load alerts: %w", err)
		}
		known := alerts[:0]
		for _, a := range alerts {
			if _, ok := m.targets[a.Series]; ok {
				known = append(known, a)
				continue
			}
			m.logger.Warn("dropping alert of unknown series", zap.String("alert_id", a.ID), zap.String("series", a.Series))
		}
		restored, stale := m.suppressor.Restore(known)
		for _, a := range stale {
			m.persist(ctx, alerting.Transition{Event: domain.EventResolved, Reason: domain.ReasonSuperseded, Alert: a})
		}
		m.refreshAlertGauge()
		m.logger.Info("active alerts restored",
			zap.Int("count", restored),
			zap.Int("stale", len(stale)),
			zap.Duration("suppression_window", m.suppressor.Window()),
		)
	}
	return nil
}
