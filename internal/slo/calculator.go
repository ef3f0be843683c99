package slo

import (
	"math"
	"time"

	"github.com/xela07ax/sloguard/internal/domain"
)

// DefaultTrendDeadband — изменение compliance меньше этого значения считаем шумом
const DefaultTrendDeadband = 0.1

// Evaluation — результат одной оценки серии
type Evaluation struct {
	Measurement domain.Measurement
	Budget      domain.ErrorBudget
	Trend       domain.Trend
}

type Calculator struct {
	deadband float64
}

func NewCalculator(deadband float64) *Calculator {
	if deadband < 0 {
		deadband = DefaultTrendDeadband
	}
	return &Calculator{deadband: deadband}
}

// Evaluate превращает сырые счетчики окна в замер и снимок бюджета ошибок.
// prev — замер предыдущего интервала (nil, если его нет).
func (c *Calculator) Evaluate(t domain.Target, counters domain.Counters, prev *domain.Measurement, now time.Time) (Evaluation, error) {
	if err := counters.Validate(); err != nil {
		return Evaluation{}, err
	}
	good, err := counters.Good(t.Kind)
	if err != nil {
		return Evaluation{}, err
	}

	compliance := Compliance(good, counters.Total)
	m := domain.Measurement{
		Series:    t.Name,
		Timestamp: now,
		Value:     compliance,
		Status:    Classify(t, compliance),
	}

	return Evaluation{
		Measurement: m,
		Budget:      Budget(t, compliance, now),
		Trend:       c.Trend(compliance, prev),
	}, nil
}

// Compliance = 100 * good / total. Нет трафика — полностью в норме.
func Compliance(good, total uint64) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(good) / float64(total)
}

// Classify: breach ниже Objective-Critical, warning ниже Objective-Warning
func Classify(t domain.Target, compliance float64) domain.Status {
	switch {
	case compliance < t.Objective-t.CriticalThreshold:
		return domain.StatusBreach
	case compliance < t.Objective-t.WarningThreshold:
		return domain.StatusWarning
	default:
		return domain.StatusHealthy
	}
}

// Budget считает расход бюджета ошибок и скорость его сжигания.
// burnRate = 1 значит бюджет закончится ровно к концу окна.
func Budget(t domain.Target, compliance float64, now time.Time) domain.ErrorBudget {
	allowed := t.AllowedErrorRate()
	actual := 100 - compliance
	if actual < 0 {
		actual = 0
	}

	b := domain.ErrorBudget{AllowedErrorRate: allowed}
	if allowed <= 0 {
		// Objective=100 валидацию не проходит; любой сбой съедает весь бюджет
		if actual > 0 {
			b.Consumed = 100
		}
		b.Remaining = 100 - b.Consumed
		return b
	}

	b.BurnRate = actual / allowed
	b.Consumed = clamp(b.BurnRate*100, 0, 100)
	b.Remaining = 100 - b.Consumed

	if b.BurnRate > 0 {
		left := b.Remaining / 100 / b.BurnRate * float64(t.Window)
		if left < math.MaxInt64 {
			at := now.Add(time.Duration(left))
			b.EstimatedDepletion = &at
		}
	}
	return b
}

// Trend сравнивает с замером предыдущего интервала с учетом мертвой зоны
func (c *Calculator) Trend(compliance float64, prev *domain.Measurement) domain.Trend {
	if prev == nil {
		return domain.TrendStable
	}
	delta := compliance - prev.Value
	switch {
	case delta > c.deadband:
		return domain.TrendImproving
	case delta < -c.deadband:
		return domain.TrendDegrading
	default:
		return domain.TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
