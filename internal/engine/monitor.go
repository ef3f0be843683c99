package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/sloguard/internal/alerting"
	"github.com/xela07ax/sloguard/internal/domain"
	"github.com/xela07ax/sloguard/internal/slo"
	"github.com/xela07ax/sloguard/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AlertStore — персистентная таблица активных алертов (переживает рестарт)
type AlertStore interface {
	Upsert(ctx context.Context, a domain.Alert) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]domain.Alert, error)
}

// MeasurementLog — асинхронная запись замеров (store.Journal)
type MeasurementLog interface {
	Log(m domain.Measurement)
	Pending() int
}

// HealthReporter получает статус серии после каждой оценки
type HealthReporter interface {
	SetSeriesStatus(series string, status domain.Status)
}

type Options struct {
	CollectTimeout time.Duration
	NotifyTimeout  time.Duration
	PersistTimeout time.Duration
	MaxParallel    int
}

func (o Options) withDefaults() Options {
	if o.CollectTimeout <= 0 {
		o.CollectTimeout = 10 * time.Second
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 15 * time.Second
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.MaxParallel <= 0 {
		o.MaxParallel = 8
	}
	return o
}

// Monitor — сервисный объект: владеет каталогом целей, хранилищем, снимками статусов и алертами.
// Каталог целей неизменяем после создания.
type Monitor struct {
	targets map[string]domain.Target
	names   []string
	locks   map[string]*sync.Mutex

	source     CounterSource
	recorder   CounterRecorder
	store      *store.MetricStore
	calc       *slo.Calculator
	suppressor *alerting.Suppressor
	notifier   alerting.Notifier

	alerts  AlertStore
	journal MeasurementLog
	health  HealthReporter
	metrics *Metrics

	clock  Clock
	opts   Options
	logger *zap.Logger

	snapMu    sync.RWMutex
	snapshots map[string]domain.StatusView
}

func NewMonitor(
	targets []domain.Target,
	source CounterSource,
	st *store.MetricStore,
	calc *slo.Calculator,
	sup *alerting.Suppressor,
	notifier alerting.Notifier,
	clock Clock,
	logger *zap.Logger,
	opts Options,
) (*Monitor, error) {
	if err := domain.ValidateTargets(targets); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}

	m := &Monitor{
		targets:    make(map[string]domain.Target, len(targets)),
		locks:      make(map[string]*sync.Mutex, len(targets)),
		source:     source,
		store:      st,
		calc:       calc,
		suppressor: sup,
		notifier:   notifier,
		clock:      clock,
		opts:       opts.withDefaults(),
		logger:     logger.Named("monitor"),
		snapshots:  make(map[string]domain.StatusView, len(targets)),
	}
	for _, t := range targets {
		t = t.Normalize()
		m.targets[t.Name] = t
		m.locks[t.Name] = &sync.Mutex{}
		m.names = append(m.names, t.Name)
	}
	sort.Strings(m.names)

	if r, ok := source.(CounterRecorder); ok {
		m.recorder = r
	}
	return m, nil
}

func (m *Monitor) WithAlertStore(s AlertStore) *Monitor {
	m.alerts = s
	return m
}

func (m *Monitor) WithJournal(j MeasurementLog) *Monitor {
	m.journal = j
	return m
}

func (m *Monitor) WithHealth(h HealthReporter) *Monitor {
	m.health = h
	return m
}

func (m *Monitor) WithMetrics(mt *Metrics) *Monitor {
	m.metrics = mt
	return m
}

// Targets — каталог целей в порядке имен
func (m *Monitor) Targets() []domain.Target {
	out := make([]domain.Target, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.targets[name])
	}
	return out
}

// RecordMeasurement принимает счетчики запросов серии (push-модель).
func (m *Monitor) RecordMeasurement(_ context.Context, series string, c domain.Counters) error {
	if _, ok := m.targets[series]; !ok {
		return fmt.Errorf("record %q: %w", series, domain.ErrUnknownSeries)
	}
	if m.recorder == nil {
		return domain.ErrIngestDisabled
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := m.recorder.Add(series, c, m.clock.Now()); err != nil {
		return fmt.Errorf("record %q: %w", series, err)
	}
	return nil
}

// EvaluateOnce — один тик: оценивает все серии с ограниченным параллелизмом.
// Ошибка одной серии не мешает остальным.
func (m *Monitor) EvaluateOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MaxParallel)

	for _, name := range m.names {
		t := m.targets[name]
		g.Go(func() error {
			m.evaluateSeries(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	if m.metrics != nil && m.journal != nil {
		m.metrics.JournalBufferFill.Set(float64(m.journal.Pending()))
	}
	return ctx.Err()
}

func (m *Monitor) evaluateSeries(ctx context.Context, t domain.Target) {
	lock := m.locks[t.Name]
	if !lock.TryLock() {
		m.logger.Warn("series evaluation already in progress, skipped", zap.String("series", t.Name))
		m.countEvaluation(t.Name, "busy")
		return
	}
	defer lock.Unlock()

	if ctx.Err() != nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, m.opts.CollectTimeout)
	counters, err := m.source.Fetch(fctx, t.Name, t.Window)
	cancel()
	if err != nil {
		m.logger.Error("counter collection failed, keeping previous measurement",
			zap.Error(&domain.CollectionError{Series: t.Name, Err: err}))
		m.countEvaluation(t.Name, "collect_error")
		return
	}

	now := m.clock.Now()
	var prev *domain.Measurement
	if last, ok := m.store.Latest(t.Name); ok {
		prev = &last
	}

	ev, err := m.calc.Evaluate(t, counters, prev, now)
	if err != nil {
		m.logger.Error("evaluation rejected",
			zap.Error(&domain.CollectionError{Series: t.Name, Err: err}))
		m.countEvaluation(t.Name, "calc_error")
		return
	}

	if err := m.store.Record(ev.Measurement); err != nil {
		m.logger.Warn("measurement not recorded", zap.String("series", t.Name), zap.Error(err))
		m.countEvaluation(t.Name, "store_error")
		return
	}
	if m.journal != nil {
		m.journal.Log(ev.Measurement)
	}

	m.publish(t, ev)

	transitions := m.suppressor.Observe(t.Name, ev.Measurement.Status, t.Impact, ev.Measurement.Value, now)
	m.apply(ctx, transitions)
	m.countEvaluation(t.Name, "ok")
}

// publish заменяет снимок статуса серии целиком и обновляет health и метрики
func (m *Monitor) publish(t domain.Target, ev slo.Evaluation) {
	view := domain.StatusView{
		Series:               t.Name,
		Status:               ev.Measurement.Status,
		Value:                ev.Measurement.Value,
		Target:               t.Objective,
		ErrorBudgetRemaining: ev.Budget.Remaining,
		BurnRate:             ev.Budget.BurnRate,
		Trend:                ev.Trend,
		EstimatedDepletion:   ev.Budget.EstimatedDepletion,
		BusinessImpact:       t.Impact,
		LastUpdated:          ev.Measurement.Timestamp,
	}

	m.snapMu.Lock()
	m.snapshots[t.Name] = view
	m.snapMu.Unlock()

	if m.health != nil {
		m.health.SetSeriesStatus(t.Name, view.Status)
	}
	if m.metrics != nil {
		m.metrics.Compliance.WithLabelValues(t.Name).Set(view.Value)
		m.metrics.BudgetRemaining.WithLabelValues(t.Name).Set(view.ErrorBudgetRemaining)
		m.metrics.BurnRate.WithLabelValues(t.Name).Set(view.BurnRate)
	}

	if ev.Measurement.Status != domain.StatusHealthy {
		m.logger.Info("series degraded",
			zap.String("series", t.Name),
			zap.String("status", string(view.Status)),
			zap.Float64("compliance", view.Value),
			zap.Float64("burn_rate", view.BurnRate),
		)
	}
}

// apply сохраняет и рассылает переходы алертов. Сбой хранилища или канала не откатывает переход.
func (m *Monitor) apply(ctx context.Context, transitions []alerting.Transition) {
	for _, tr := range transitions {
		m.persist(ctx, tr)

		n := domain.Notification{
			ID:     uuid.New().String(),
			Event:  tr.Event,
			Reason: tr.Reason,
			Alert:  tr.Alert,
			Target: m.targets[tr.Alert.Series].Objective,
			At:     m.clock.Now(),
		}

		outcome := "sent"
		nctx, cancel := context.WithTimeout(ctx, m.opts.NotifyTimeout)
		err := m.notifier.Notify(nctx, n)
		cancel()
		if err != nil {
			outcome = "failed"
			m.logger.Error("notification failed",
				zap.String("alert_id", tr.Alert.ID),
				zap.String("event", string(tr.Event)),
				zap.Error(err),
			)
		}
		if m.metrics != nil {
			m.metrics.Notifications.WithLabelValues(string(tr.Event), string(tr.Alert.Level), outcome).Inc()
		}
	}

	if len(transitions) > 0 {
		m.refreshAlertGauge()
	}
}

func (m *Monitor) persist(ctx context.Context, tr alerting.Transition) {
	if m.alerts == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.opts.PersistTimeout)
	defer cancel()

	var err error
	switch tr.Event {
	case domain.EventResolved:
		err = m.alerts.Delete(pctx, tr.Alert.ID)
	default:
		err = m.alerts.Upsert(pctx, tr.Alert)
	}
	if err != nil {
		m.logger.Error("alert state not persisted",
			zap.String("alert_id", tr.Alert.ID),
			zap.String("event", string(tr.Event)),
			zap.Error(err),
		)
	}
}

func (m *Monitor) refreshAlertGauge() {
	if m.metrics == nil {
		return
	}
	counts := map[domain.AlertLevel]int{domain.LevelWarning: 0, domain.LevelCritical: 0}
	for _, a := range m.suppressor.Active() {
		counts[a.Level]++
	}
	for level, n := range counts {
		m.metrics.ActiveAlerts.WithLabelValues(string(level)).Set(float64(n))
	}
}

func (m *Monitor) countEvaluation(series, result string) {
	if m.metrics != nil {
		m.metrics.Evaluations.WithLabelValues(series, result).Inc()
	}
}

// GetStatus — последний снимок серии
func (m *Monitor) GetStatus(series string) (domain.StatusView, error) {
	if _, ok := m.targets[series]; !ok {
		return domain.StatusView{}, fmt.Errorf("status %q: %w", series, domain.ErrUnknownSeries)
	}
	m.snapMu.RLock()
	view, ok := m.snapshots[series]
	m.snapMu.RUnlock()
	if !ok {
		return domain.StatusView{}, fmt.Errorf("status %q: %w", series, domain.ErrNoData)
	}
	return view, nil
}

// GetStatuses — снимки всех серий, у которых уже есть данные
func (m *Monitor) GetStatuses() []domain.StatusView {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()

	out := make([]domain.StatusView, 0, len(m.snapshots))
	for _, name := range m.names {
		if v, ok := m.snapshots[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (m *Monitor) GetActiveAlerts() []domain.ActiveAlert {
	now := m.clock.Now()
	active := m.suppressor.Active()

	out := make([]domain.ActiveAlert, 0, len(active))
	for _, a := range active {
		out = append(out, domain.ActiveAlert{
			ID:             a.ID,
			Series:         a.Series,
			Level:          a.Level,
			StartTime:      a.FirstSeen,
			DurationMs:     now.Sub(a.FirstSeen).Milliseconds(),
			BusinessImpact: a.Impact,
			Priority:       a.Priority(),
		})
	}
	return out
}

// ResolveAlert — ручное снятие алерта оператором. Если нарушение продолжается,
// следующий тик поднимет новый алерт.
func (m *Monitor) ResolveAlert(ctx context.Context, id string) error {
	tr, err := m.suppressor.Resolve(id)
	if err != nil {
		return err
	}
	m.logger.Info("alert resolved manually", zap.String("alert_id", id), zap.String("series", tr.Alert.Series))
	m.apply(ctx, []alerting.Transition{tr})
	return nil
}

// ResolveKey снимает алерт по паре (series, level)
func (m *Monitor) ResolveKey(ctx context.Context, key domain.AlertKey) error {
	tr, err := m.suppressor.ResolveKey(key)
	if err != nil {
		return err
	}
	m.logger.Info("alert resolved by signal", zap.String("key", key.String()))
	m.apply(ctx, []alerting.Transition{tr})
	return nil
}
