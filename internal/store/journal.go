package store

/*
Файл journal.go — асинхронный журнал замеров (append-only measurement log).

- Log не блокирует тик планировщика: замер уходит в буферизированный канал,
  при переполнении событие сбрасывается с записью в лог (Load Shedding).
- Воркер копит пачку и пишет ее в хранилище по таймеру или по достижении лимита.
- Stop закрывает вход (под мьютексом, без гонки с Log), ждет вычитки канала и делает финальный flush.
- Раз в pruneEvery воркер удаляет из хранилища замеры старше горизонта хранения.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/sloguard/internal/domain"
	"go.uber.org/zap"
)

// MeasurementWriter определяет, куда физически сохраняются замеры
type MeasurementWriter interface {
	WriteBatch(ctx context.Context, ms []domain.Measurement) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type JournalOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Retention     time.Duration
	PruneEvery    time.Duration
}

func (o JournalOptions) withDefaults() JournalOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.PruneEvery <= 0 {
		o.PruneEvery = time.Hour
	}
	return o
}

type Journal struct {
	ch     chan domain.Measurement
	repo   MeasurementWriter
	opts   JournalOptions
	logger *zap.Logger
	wg     sync.WaitGroup

	// closeMu защищает close(ch) от конкурентного Log
	closeMu sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewJournal(repo MeasurementWriter, opts JournalOptions, logger *zap.Logger) *Journal {
	opts = opts.withDefaults()
	return &Journal{
		ch:     make(chan domain.Measurement, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "journal")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.closeMu.Lock()
	if j.closed {
		j.closeMu.Unlock()
		return
	}
	j.closed = true
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.closeMu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully", zap.Int64("dropped", j.dropped.Load()))
}

// Log ставит замер в очередь на запись
func (j *Journal) Log(m domain.Measurement) {
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()

	if j.closed {
		j.logger.Warn("measurement dropped: journal is stopping", zap.String("series", m.Series))
		return
	}

	select {
	case j.ch <- m:
	default:
		j.dropped.Add(1)
		j.logger.Error("journal_buffer_overflow",
			zap.String("series", m.Series),
			zap.Time("timestamp", m.Timestamp),
		)
	}
}

// Pending — текущее заполнение буфера (для метрик)
func (j *Journal) Pending() int {
	return len(j.ch)
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]domain.Measurement, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	if j.opts.Retention > 0 {
		pruneTicker := time.NewTicker(j.opts.PruneEvery)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// основной контекст к этому моменту может быть уже закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case m, ok := <-j.ch:
			if !ok {
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, m)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-pruneC:
			j.prune()
		}
	}
}

func (j *Journal) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.opts.Retention)
	n, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("journal prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("journal pruned", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
	}
}
