package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/sloguard/internal/domain"
)

// CounterSource отдает счетчики серии за окно SLO
type CounterSource interface {
	Fetch(ctx context.Context, series string, window time.Duration) (domain.Counters, error)
}

// CounterRecorder принимает счетчики извне (push-модель)
type CounterRecorder interface {
	Add(series string, c domain.Counters, at time.Time) error
}

type bucket struct {
	start    time.Time
	counters domain.Counters
}

// Accumulator — оконные суммы счетчиков в памяти, наполняемые через ingestion API.
// Счетчики складываются в корзины по resolution, корзины старше maxAge выбрасываются.
type Accumulator struct {
	mu         sync.Mutex
	buckets    map[string][]bucket
	resolution time.Duration
	maxAge     time.Duration
	now        func() time.Time
}

func NewAccumulator(resolution, maxAge time.Duration) *Accumulator {
	if resolution <= 0 {
		resolution = time.Minute
	}
	return &Accumulator{
		buckets:    make(map[string][]bucket),
		resolution: resolution,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

func (a *Accumulator) WithClock(now func() time.Time) *Accumulator {
	a.now = now
	return a
}

// Add кладет счетчики в корзину по времени at. Переполнение корзины отклоняется целиком.
func (a *Accumulator) Add(series string, c domain.Counters, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := at.Truncate(a.resolution)
	items := a.prune(a.buckets[series], a.now())

	// обычно пишем в последнюю корзину; опоздавшие счетчики ищем с конца
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].start.Equal(start) {
			sum, err := items[i].counters.Add(c)
			if err != nil {
				return err
			}
			items[i].counters = sum
			a.buckets[series] = items
			return nil
		}
		if items[i].start.Before(start) {
			items = append(items, bucket{})
			copy(items[i+2:], items[i+1:])
			items[i+1] = bucket{start: start, counters: c}
			a.buckets[series] = items
			return nil
		}
	}
	a.buckets[series] = append([]bucket{{start: start, counters: c}}, items...)
	return nil
}

func (a *Accumulator) Fetch(_ context.Context, series string, window time.Duration) (domain.Counters, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	items := a.prune(a.buckets[series], now)
	a.buckets[series] = items

	since := now.Add(-window)
	var total domain.Counters
	for _, b := range items {
		if b.start.Before(since) {
			continue
		}
		sum, err := total.Add(b.counters)
		if err != nil {
			return domain.Counters{}, fmt.Errorf("accumulator %q: %w", series, err)
		}
		total = sum
	}
	return total, nil
}

func (a *Accumulator) prune(items []bucket, now time.Time) []bucket {
	if a.maxAge <= 0 {
		return items
	}
	cutoff := now.Add(-a.maxAge)
	i := 0
	for i < len(items) && items[i].start.Before(cutoff) {
		i++
	}
	return items[i:]
}
