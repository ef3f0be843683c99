package store

import (
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/sloguard/internal/domain"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func sample(series string, ts time.Time, v float64) domain.Measurement {
	return domain.Measurement{Series: series, Timestamp: ts, Value: v, Status: domain.StatusHealthy}
}

func TestMetricStore_RetentionPrunesOnWrite(t *testing.T) {
	now := t0
	s := NewMetricStore(168 * time.Hour).WithClock(func() time.Time { return now })

	// замер 169 часов назад сохраняем, пока часы еще не ушли вперед
	now = t0.Add(-169 * time.Hour)
	if err := s.Record(sample("api", now, 99)); err != nil {
		t.Fatal(err)
	}
	now = t0
	if err := s.Record(sample("api", t0, 99.9)); err != nil {
		t.Fatal(err)
	}

	got := s.Dump("api")
	if len(got) != 1 || !got[0].Timestamp.Equal(t0) {
		t.Fatalf("expected only the fresh measurement, got %+v", got)
	}
}

func TestMetricStore_OrderAndQuery(t *testing.T) {
	s := NewMetricStore(168 * time.Hour).WithClock(func() time.Time { return t0 })

	for i := 5; i >= 0; i-- {
		if err := s.Record(sample("api", t0.Add(-time.Duration(i)*time.Hour), float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	// тот же момент допускается, более старый — нет
	if err := s.Record(sample("api", t0, 42)); err != nil {
		t.Fatalf("equal timestamp must be accepted: %v", err)
	}
	if err := s.Record(sample("api", t0.Add(-time.Minute), 1)); !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("older timestamp = %v, want ErrOutOfOrder", err)
	}

	recent := s.Query("api", 150*time.Minute)
	if len(recent) != 4 {
		t.Fatalf("query returned %d, want 4", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.Before(recent[i-1].Timestamp) {
			t.Fatal("query must keep insertion order")
		}
	}

	last, ok := s.Latest("api")
	if !ok || last.Value != 42 {
		t.Fatalf("latest = %+v, %v", last, ok)
	}
	if _, ok := s.Latest("unknown"); ok {
		t.Fatal("latest of an unknown series must be absent")
	}
	if got := s.Query("unknown", time.Hour); got == nil || len(got) != 0 {
		t.Fatalf("query of an unknown series must be empty, got %v", got)
	}
}

func TestMetricStore_DumpIsACopy(t *testing.T) {
	s := NewMetricStore(time.Hour).WithClock(func() time.Time { return t0 })
	_ = s.Record(sample("api", t0, 99))

	d := s.Dump("api")
	d[0].Value = 0
	if last, _ := s.Latest("api"); last.Value != 99 {
		t.Fatal("Dump must not expose internal storage")
	}
}

func TestMetricStore_Load(t *testing.T) {
	s := NewMetricStore(24 * time.Hour).WithClock(func() time.Time { return t0 })

	n := s.Load([]domain.Measurement{
		sample("api", t0.Add(-48*time.Hour), 1), // за горизонтом хранения
		sample("api", t0.Add(-2*time.Hour), 2),
		sample("api", t0.Add(-3*time.Hour), 3), // нарушает порядок
		sample("db", t0.Add(-time.Hour), 4),
	})
	if n != 2 {
		t.Fatalf("loaded = %d, want 2", n)
	}
	if len(s.Dump("api")) != 1 || len(s.Dump("db")) != 1 {
		t.Fatalf("unexpected state api=%v db=%v", s.Dump("api"), s.Dump("db"))
	}
}
