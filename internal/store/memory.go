package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/sloguard/internal/domain"
)

// MetricStore — in-memory буфер замеров по сериям (L1).
// Порядок гарантируется только внутри одной серии.
type MetricStore struct {
	mu        sync.RWMutex
	series    map[string][]domain.Measurement
	retention time.Duration
	now       func() time.Time
}

func NewMetricStore(retention time.Duration) *MetricStore {
	return &MetricStore{
		series:    make(map[string][]domain.Measurement),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock подменяет часы (для тестов)
func (s *MetricStore) WithClock(now func() time.Time) *MetricStore {
	s.now = now
	return s
}

// Record добавляет замер в конец серии и чистит записи старше горизонта хранения.
// Слайс серии заменяется целиком, читатели никогда не видят частичную запись.
func (s *MetricStore) Record(m domain.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.series[m.Series]
	if n := len(current); n > 0 && m.Timestamp.Before(current[n-1].Timestamp) {
		return fmt.Errorf("store: series %q: %w", m.Series, domain.ErrOutOfOrder)
	}

	cutoff := s.now().Add(-s.retention)
	next := make([]domain.Measurement, 0, len(current)+1)
	for _, old := range current {
		if old.Timestamp.After(cutoff) {
			next = append(next, old)
		}
	}
	if m.Timestamp.After(cutoff) {
		next = append(next, m)
	}
	s.series[m.Series] = next
	return nil
}

// Query возвращает замеры новее now-lookback в исходном порядке
func (s *MetricStore) Query(series string, lookback time.Duration) []domain.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := s.now().Add(-lookback)
	result := make([]domain.Measurement, 0)
	for _, m := range s.series[series] {
		if m.Timestamp.After(since) {
			result = append(result, m)
		}
	}
	return result
}

// Latest — последний замер серии
func (s *MetricStore) Latest(series string) (domain.Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.series[series]
	if len(items) == 0 {
		return domain.Measurement{}, false
	}
	return items[len(items)-1], true
}

// Dump отдает копию всей сохраненной истории серии
func (s *MetricStore) Dump(series string) []domain.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Measurement, len(s.series[series]))
	copy(out, s.series[series])
	return out
}

// Load — холодная загрузка истории при старте (прогрев из Postgres).
// Ожидает замеры, отсортированные по времени; нарушающие порядок пропускаются.
func (s *MetricStore) Load(ms []domain.Measurement) int {
	cutoff := s.now().Add(-s.retention)
	loaded := 0
	for _, m := range ms {
		if !m.Timestamp.After(cutoff) {
			continue
		}
		if err := s.Record(m); err == nil {
			loaded++
		}
	}
	return loaded
}
