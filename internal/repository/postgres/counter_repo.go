package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/sloguard/internal/domain"
)

// CounterRepo — pull-источник счетчиков: агрегирует request_events за окно цели
type CounterRepo struct {
	pool *pgxpool.Pool
}

func NewCounterRepo(pool *pgxpool.Pool) *CounterRepo {
	return &CounterRepo{pool: pool}
}

func (r *CounterRepo) Fetch(ctx context.Context, series string, window time.Duration) (domain.Counters, error) {
	var total, success, failed, slow int64
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COUNT(*) FILTER (WHERE outcome = 'error'),
			COUNT(*) FILTER (WHERE slow)
		FROM request_events
		WHERE series = $1 AND occurred_at > NOW() - make_interval(secs => $2)`,
		series, window.Seconds(),
	).Scan(&total, &success, &failed, &slow)
	if err != nil {
		return domain.Counters{}, fmt.Errorf("postgres: failed to count events for %s: %w", series, err)
	}

	return domain.Counters{
		Total:   uint64(total),
		Success: uint64(success),
		Error:   uint64(failed),
		Slow:    uint64(slow),
	}, nil
}
