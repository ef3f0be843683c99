package domain

import (
	"fmt"
	"math"
)

// Counters — сырые счетчики запросов за текущее окно
type Counters struct {
	Total   uint64 `json:"total"`
	Success uint64 `json:"success"`
	Error   uint64 `json:"error"`
	Slow    uint64 `json:"slow"`
}

// Validate проверяет, что подмножества не превышают общее число запросов.
func (c Counters) Validate() error {
	// сумму success+error не считаем: на uint64 она переполняется
	if c.Success > c.Total || c.Error > c.Total || c.Slow > c.Total || c.Error > c.Total-c.Success {
		return fmt.Errorf("%w: total=%d success=%d error=%d slow=%d",
			ErrInvalidCounters, c.Total, c.Success, c.Error, c.Slow)
	}
	return nil
}

// Add складывает счетчики двух интервалов.
// Для валидных слагаемых остальные поля не больше Total, поэтому достаточно проверить Total.
func (c Counters) Add(o Counters) (Counters, error) {
	if o.Total > math.MaxUint64-c.Total {
		return c, fmt.Errorf("%w: total overflows (%d + %d)", ErrInvalidCounters, c.Total, o.Total)
	}
	return Counters{
		Total:   c.Total + o.Total,
		Success: c.Success + o.Success,
		Error:   c.Error + o.Error,
		Slow:    c.Slow + o.Slow,
	}, nil
}

// Good возвращает "хорошее" подмножество запросов для вида SLO.
// Новый вид SLO обязан появиться в этом switch, иначе конфиг не пройдет валидацию.
func (c Counters) Good(kind Kind) (uint64, error) {
	switch kind {
	case KindAvailability:
		return c.Success, nil
	case KindErrorRate:
		return c.Total - c.Error, nil
	case KindLatency:
		return c.Total - c.Slow, nil
	case KindThroughput:
		return c.Success, nil
	default:
		return 0, &ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown slo type %q", kind)}
	}
}
