package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task — одна периодическая прогонка
type Task func(ctx context.Context)

// Lease разрешает тик только одной реплике (см. RedisLease). nil — всегда разрешено.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// Scheduler — один периодический таймер с отменой.
// Тики не ставятся в очередь: если прошлый прогон еще идет, тик пропускается.
type Scheduler struct {
	interval time.Duration
	clock    Clock
	task     Task
	lease    Lease
	logger   *zap.Logger
	metrics  *Metrics

	busy atomic.Bool
	runs sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(interval time.Duration, clock Clock, task Task, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		interval: interval,
		clock:    clock,
		task:     task,
		logger:   logger.Named("scheduler"),
	}
}

func (s *Scheduler) WithLease(l Lease) *Scheduler {
	s.lease = l
	return s
}

func (s *Scheduler) WithMetrics(m *Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Start запускает цикл в горутине. Повторный Start без Stop игнорируется.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ticker := s.clock.NewTicker(s.interval)
	go s.loop(runCtx, ticker, s.done)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop отменяет таймер и контекст текущего прогона и ждет его завершения.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	s.runs.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Trigger(ctx)
		}
	}
}

// Trigger запускает прогон немедленно, если предыдущий завершен.
// Возвращает false, если тик пропущен.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("previous evaluation still running, tick skipped")
		if s.metrics != nil {
			s.metrics.SkippedTicks.Inc()
		}
		return false
	}

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		if err != nil {
			// работаем дальше: пропущенная оценка хуже двойной
			s.logger.Warn("lease check failed, evaluating anyway", zap.Error(err))
		} else if !ok {
			s.busy.Store(false)
			s.logger.Debug("lease held by another replica, tick skipped")
			return false
		}
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.busy.Store(false)

		start := time.Now()
		s.task(ctx)
		if s.metrics != nil {
			s.metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
	}()
	return true
}
