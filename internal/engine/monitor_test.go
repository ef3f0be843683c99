package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/sloguard/internal/alerting"
	"github.com/xela07ax/sloguard/internal/domain"
	"github.com/xela07ax/sloguard/internal/slo"
	"github.com/xela07ax/sloguard/internal/store"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func checkout() domain.Target {
	return domain.Target{
		Name:              "checkout",
		Kind:              domain.KindAvailability,
		Objective:         99.9,
		CriticalThreshold: 0.5,
		Window:            time.Hour,
		Impact:            domain.ImpactHigh,
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, string(n.Event)+"/"+string(n.Alert.Level))
	}
	return out
}

type stubSource struct {
	mu       sync.Mutex
	counters domain.Counters
	err      error
	calls    int
	block    chan struct{}
	entered  chan struct{}
}

func (s *stubSource) Fetch(ctx context.Context, _ string, _ time.Duration) (domain.Counters, error) {
	s.mu.Lock()
	s.calls++
	block, entered := s.block, s.entered
	c, err := s.counters, s.err
	s.mu.Unlock()

	if block != nil {
		entered <- struct{}{}
		<-block
	}
	return c, err
}

func (s *stubSource) set(c domain.Counters, err error) {
	s.mu.Lock()
	s.counters, s.err = c, err
	s.mu.Unlock()
}

type memAlertStore struct {
	mu     sync.Mutex
	alerts map[string]domain.Alert
}

func newMemAlertStore(seed ...domain.Alert) *memAlertStore {
	s := &memAlertStore{alerts: make(map[string]domain.Alert)}
	for _, a := range seed {
		s.alerts[a.ID] = a
	}
	return s
}

func (s *memAlertStore) Upsert(_ context.Context, a domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
	return nil
}

func (s *memAlertStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, id)
	return nil
}

func (s *memAlertStore) ListActive(context.Context) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (s *memAlertStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

type fixture struct {
	clk      *fakeClock
	store    *store.MetricStore
	notifier *recordingNotifier
	alerts   *memAlertStore
	health   *GRPCHealth
	metrics  *Metrics
	monitor  *Monitor
}

func newFixture(t *testing.T, source CounterSource) *fixture {
	t.Helper()
	f := &fixture{
		clk:      newFakeClock(t0),
		notifier: &recordingNotifier{},
		alerts:   newMemAlertStore(),
		health:   NewGRPCHealth(),
		metrics:  NewMetrics(nil),
	}
	f.store = store.NewMetricStore(169 * time.Hour).WithClock(f.clk.Now)
	if acc, ok := source.(*Accumulator); ok {
		acc.WithClock(f.clk.Now)
	}

	m, err := NewMonitor(
		[]domain.Target{checkout()},
		source,
		f.store,
		slo.NewCalculator(slo.DefaultTrendDeadband),
		alerting.NewSuppressor(15*time.Minute),
		f.notifier,
		f.clk,
		zap.NewNop(),
		Options{},
	)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	f.monitor = m.WithAlertStore(f.alerts).WithHealth(f.health).WithMetrics(f.metrics)
	return f
}

func TestMonitor_AlertLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewAccumulator(time.Minute, 2*time.Hour))
	m := f.monitor

	// 99.8% при цели 99.9 — warning, бюджет сжигается вдвое быстрее нормы
	if err := m.RecordMeasurement(ctx, "checkout", domain.Counters{Total: 1000, Success: 998}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := m.EvaluateOnce(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	view, err := m.GetStatus("checkout")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != domain.StatusWarning || !approx(view.BurnRate, 2) || view.BusinessImpact != domain.ImpactHigh {
		t.Fatalf("unexpected view %+v", view)
	}
	alerts := m.GetActiveAlerts()
	if len(alerts) != 1 || alerts[0].Level != domain.LevelWarning || alerts[0].Priority != 3 {
		t.Fatalf("expected one warning alert, got %+v", alerts)
	}
	if f.alerts.len() != 1 {
		t.Fatalf("fired alert must be persisted")
	}

	// деградация до 99.0 — critical вытесняет warning
	f.clk.Advance(time.Minute)
	_ = m.RecordMeasurement(ctx, "checkout", domain.Counters{Total: 1000, Success: 982})
	_ = m.EvaluateOnce(ctx)

	view, _ = m.GetStatus("checkout")
	if view.Status != domain.StatusBreach || view.Trend != domain.TrendDegrading {
		t.Fatalf("expected degrading breach, got %+v", view)
	}
	alerts = m.GetActiveAlerts()
	if len(alerts) != 1 || alerts[0].Level != domain.LevelCritical {
		t.Fatalf("expected only a critical alert, got %+v", alerts)
	}
	if alerts[0].DurationMs != 0 {
		t.Errorf("duration = %d, want 0 right after firing", alerts[0].DurationMs)
	}
	resp, err := f.health.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: "checkout"})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("breach must be NOT_SERVING, got %v %v", resp, err)
	}

	// окно опустело — трафика нет, серия здорова, алерт снят
	f.clk.Advance(2 * time.Hour)
	_ = m.EvaluateOnce(ctx)

	view, _ = m.GetStatus("checkout")
	if view.Status != domain.StatusHealthy || view.Value != 100 {
		t.Fatalf("expected healthy without traffic, got %+v", view)
	}
	if len(m.GetActiveAlerts()) != 0 || f.alerts.len() != 0 {
		t.Fatal("recovery must clear alerts in memory and storage")
	}

	want := []string{"fired/warning", "resolved/warning", "fired/critical", "resolved/critical"}
	got := f.notifier.events()
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", got, want)
		}
	}
	if hist := f.store.Dump("checkout"); len(hist) != 3 {
		t.Errorf("history length = %d, want 3", len(hist))
	}
	if v := counterValue(t, f.metrics.Evaluations.WithLabelValues("checkout", "ok")); v != 3 {
		t.Errorf("ok evaluations = %v, want 3", v)
	}
}

func TestMonitor_CollectionFailureKeepsPreviousMeasurement(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{counters: domain.Counters{Total: 100, Success: 100}}
	f := newFixture(t, src)

	_ = f.monitor.EvaluateOnce(ctx)
	before, err := f.monitor.GetStatus("checkout")
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	src.set(domain.Counters{}, errors.New("connection refused"))
	f.clk.Advance(time.Minute)
	if err := f.monitor.EvaluateOnce(ctx); err != nil {
		t.Fatalf("a failing source must not fail the tick: %v", err)
	}

	after, _ := f.monitor.GetStatus("checkout")
	if !after.LastUpdated.Equal(before.LastUpdated) {
		t.Fatal("previous snapshot must be retained on collection failure")
	}
	if n := len(f.store.Dump("checkout")); n != 1 {
		t.Fatalf("history length = %d, want 1", n)
	}
	if v := counterValue(t, f.metrics.Evaluations.WithLabelValues("checkout", "collect_error")); v != 1 {
		t.Errorf("collect errors = %v, want 1", v)
	}

	// некорректные счетчики — тоже ошибка сбора, серия пропускается
	src.set(domain.Counters{Total: 10, Success: 11}, nil)
	f.clk.Advance(time.Minute)
	_ = f.monitor.EvaluateOnce(ctx)
	if n := len(f.store.Dump("checkout")); n != 1 {
		t.Fatalf("invalid counters must not be stored, history length = %d", n)
	}
}

func TestMonitor_NotificationFailureStillTransitions(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{counters: domain.Counters{Total: 1000, Success: 990}}
	f := newFixture(t, src)
	f.notifier.err = errors.New("webhook unavailable")

	_ = f.monitor.EvaluateOnce(ctx)
	if len(f.monitor.GetActiveAlerts()) != 1 {
		t.Fatal("alert must become active even if notification failed")
	}
	if v := counterValue(t, f.metrics.Notifications.WithLabelValues("fired", "critical", "failed")); v != 1 {
		t.Errorf("failed notifications = %v, want 1", v)
	}

	// внутри окна подавления повторов нет даже после неудачной отправки
	f.clk.Advance(5 * time.Minute)
	_ = f.monitor.EvaluateOnce(ctx)
	if len(f.notifier.events()) != 1 {
		t.Fatalf("expected suppression, got %v", f.notifier.events())
	}

	// после окна подавления — повторное оповещение
	f.clk.Advance(15 * time.Minute)
	_ = f.monitor.EvaluateOnce(ctx)
	got := f.notifier.events()
	if len(got) != 2 || got[1] != "renotified/critical" {
		t.Fatalf("expected renotification, got %v", got)
	}
}

func TestMonitor_ResolveAlert(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{counters: domain.Counters{Total: 1000, Success: 990}}
	f := newFixture(t, src)
	_ = f.monitor.EvaluateOnce(ctx)

	active := f.monitor.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected one alert, got %+v", active)
	}
	if err := f.monitor.ResolveAlert(ctx, active[0].ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := f.monitor.ResolveAlert(ctx, active[0].ID); !errors.Is(err, domain.ErrAlertNotFound) {
		t.Fatalf("second resolve = %v, want ErrAlertNotFound", err)
	}
	last := f.notifier.sent[len(f.notifier.sent)-1]
	if last.Event != domain.EventResolved || last.Reason != domain.ReasonManual {
		t.Fatalf("unexpected resolve notification %+v", last)
	}

	// нарушение продолжается — на следующем тике новый алерт
	f.clk.Advance(time.Minute)
	_ = f.monitor.EvaluateOnce(ctx)
	again := f.monitor.GetActiveAlerts()
	if len(again) != 1 || again[0].ID == active[0].ID {
		t.Fatalf("expected a fresh alert, got %+v", again)
	}

	if err := f.monitor.ResolveKey(ctx, domain.AlertKey{Series: "checkout", Level: domain.LevelCritical}); err != nil {
		t.Fatalf("resolve by key: %v", err)
	}
	if len(f.monitor.GetActiveAlerts()) != 0 {
		t.Fatal("resolve by key must clear the alert")
	}
}

func TestMonitor_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubSource{})

	if _, err := f.monitor.GetStatus("checkout"); !errors.Is(err, domain.ErrNoData) {
		t.Errorf("status before first tick = %v, want ErrNoData", err)
	}
	if _, err := f.monitor.GetStatus("search"); !errors.Is(err, domain.ErrUnknownSeries) {
		t.Errorf("status of unknown series = %v, want ErrUnknownSeries", err)
	}
	if err := f.monitor.RecordMeasurement(ctx, "search", domain.Counters{Total: 1}); !errors.Is(err, domain.ErrUnknownSeries) {
		t.Errorf("record unknown = %v, want ErrUnknownSeries", err)
	}
	if err := f.monitor.RecordMeasurement(ctx, "checkout", domain.Counters{Total: 1}); !errors.Is(err, domain.ErrIngestDisabled) {
		t.Errorf("record with pull source = %v, want ErrIngestDisabled", err)
	}

	acc := newFixture(t, NewAccumulator(time.Minute, time.Hour))
	if err := acc.monitor.RecordMeasurement(ctx, "checkout", domain.Counters{Total: 1, Error: 2}); !errors.Is(err, domain.ErrInvalidCounters) {
		t.Errorf("record invalid = %v, want ErrInvalidCounters", err)
	}
	if err := acc.monitor.RecordMeasurement(ctx, "checkout", domain.Counters{Total: math.MaxUint64, Success: math.MaxUint64, Error: 1}); !errors.Is(err, domain.ErrInvalidCounters) {
		t.Errorf("record wrapped sum = %v, want ErrInvalidCounters", err)
	}
	_ = acc.monitor.RecordMeasurement(ctx, "checkout", domain.Counters{Total: math.MaxUint64})
	if err := acc.monitor.RecordMeasurement(ctx, "checkout", domain.Counters{Total: 1}); !errors.Is(err, domain.ErrInvalidCounters) {
		t.Errorf("record bucket overflow = %v, want ErrInvalidCounters", err)
	}

	var cfgErr *domain.ConfigurationError
	_, err := NewMonitor(nil, &stubSource{}, store.NewMetricStore(time.Hour), slo.NewCalculator(0),
		alerting.NewSuppressor(0), &recordingNotifier{}, nil, zap.NewNop(), Options{})
	if !errors.As(err, &cfgErr) {
		t.Errorf("empty catalog = %v, want ConfigurationError", err)
	}
}

func TestMonitor_SeriesNeverEvaluatedConcurrently(t *testing.T) {
	src := &stubSource{
		counters: domain.Counters{Total: 10, Success: 10},
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	f := newFixture(t, src)

	done := make(chan struct{})
	go func() {
		_ = f.monitor.EvaluateOnce(context.Background())
		close(done)
	}()
	waitFor(t, src.entered, "first fetch")

	// вторая оценка той же серии пропускается, пока идет первая
	_ = f.monitor.EvaluateOnce(context.Background())
	if v := counterValue(t, f.metrics.Evaluations.WithLabelValues("checkout", "busy")); v != 1 {
		t.Errorf("busy evaluations = %v, want 1", v)
	}

	close(src.block)
	waitFor(t, done, "first evaluation")
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
}

type stubHistory []domain.Measurement

func (h stubHistory) LoadSince(_ context.Context, since time.Time) ([]domain.Measurement, error) {
	var out []domain.Measurement
	for _, m := range h {
		if m.Timestamp.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestMonitor_Warmup(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{}
	f := newFixture(t, src)
	f.clk.Advance(10 * time.Minute)

	history := stubHistory{
		{Series: "checkout", Timestamp: t0.Add(-200 * time.Hour), Value: 50, Status: domain.StatusBreach},
		{Series: "checkout", Timestamp: t0, Value: 99.95, Status: domain.StatusHealthy},
		{Series: "checkout", Timestamp: t0.Add(time.Minute), Value: 99.8, Status: domain.StatusWarning},
		{Series: "legacy", Timestamp: t0, Value: 10, Status: domain.StatusBreach},
	}
	restored := domain.Alert{
		ID: "a-1", Series: "checkout", Level: domain.LevelWarning, Impact: domain.ImpactHigh,
		FirstSeen: t0, LastNotified: t0.Add(time.Minute),
	}
	f.alerts = newMemAlertStore(restored, domain.Alert{ID: "a-2", Series: "legacy", Level: domain.LevelCritical})
	f.monitor.WithAlertStore(f.alerts)

	if err := f.monitor.Warmup(ctx, history, 169*time.Hour); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	if n := len(f.store.Dump("checkout")); n != 2 {
		t.Fatalf("restored history = %d, want 2", n)
	}
	view, err := f.monitor.GetStatus("checkout")
	if err != nil || view.Status != domain.StatusWarning || view.Trend != domain.TrendDegrading {
		t.Fatalf("unexpected warm view %+v (%v)", view, err)
	}
	active := f.monitor.GetActiveAlerts()
	if len(active) != 1 || active[0].ID != "a-1" {
		t.Fatalf("expected restored alert a-1, got %+v", active)
	}
	if active[0].DurationMs != (10 * time.Minute).Milliseconds() {
		t.Errorf("duration = %d", active[0].DurationMs)
	}

	// окно подавления продолжается после рестарта
	src.set(domain.Counters{Total: 1000, Success: 998}, nil)
	f.clk.Advance(time.Minute)
	if err := f.monitor.EvaluateOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.notifier.events(); len(got) != 0 {
		t.Fatalf("restored alert must stay suppressed, got %v", got)
	}
	if active := f.monitor.GetActiveAlerts(); len(active) != 1 || active[0].ID != "a-1" {
		t.Fatalf("restored alert must stay active, got %+v", active)
	}
}

func TestMonitor_WarmupDropsWarningUnderCritical(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{}
	f := newFixture(t, src)

	// удаление warning при эскалации когда-то не дошло до базы
	f.alerts = newMemAlertStore(
		domain.Alert{ID: "w-1", Series: "checkout", Level: domain.LevelWarning, Impact: domain.ImpactHigh, FirstSeen: t0, LastNotified: t0},
		domain.Alert{ID: "c-1", Series: "checkout", Level: domain.LevelCritical, Impact: domain.ImpactHigh, FirstSeen: t0, LastNotified: t0},
	)
	f.monitor.WithAlertStore(f.alerts)

	if err := f.monitor.Warmup(ctx, nil, 169*time.Hour); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	active := f.monitor.GetActiveAlerts()
	if len(active) != 1 || active[0].ID != "c-1" {
		t.Fatalf("critical must supersede restored warning, got %+v", active)
	}
	if n := f.alerts.len(); n != 1 {
		t.Fatalf("stale warning row must be deleted, store has %d rows", n)
	}

	// warning-замер при активном critical не порождает нового алерта
	src.set(domain.Counters{Total: 1000, Success: 998}, nil)
	f.clk.Advance(time.Minute)
	if err := f.monitor.EvaluateOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.notifier.events(); len(got) != 0 {
		t.Fatalf("expected silence inside the window, got %v", got)
	}
	if active := f.monitor.GetActiveAlerts(); len(active) != 1 || active[0].ID != "c-1" {
		t.Fatalf("critical must stay active on warning, got %+v", active)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
