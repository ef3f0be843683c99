package postgres

/*
Файл alert_repo.go — таблица активных алертов.
Строка живет от срабатывания до снятия, поэтому окно подавления переживает рестарт.
*/

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/sloguard/internal/domain"
)

type AlertRepo struct {
	pool *pgxpool.Pool
}

func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

// Upsert сохраняет срабатывание или повторное оповещение.
// Конфликт по (series, level) перезаписывает строку: если прошлое снятие не дошло до базы, побеждает новый алерт.
func (r *AlertRepo) Upsert(ctx context.Context, a domain.Alert) error {
	query := `
		INSERT INTO slo_alerts (id, series, level, business_impact, value, first_seen, last_notified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (series, level) DO UPDATE SET
			id = EXCLUDED.id,
			business_impact = EXCLUDED.business_impact,
			value = EXCLUDED.value,
			first_seen = EXCLUDED.first_seen,
			last_notified = EXCLUDED.last_notified`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Series, string(a.Level), string(a.Impact), a.Value, a.FirstSeen, a.LastNotified)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert alert %s: %w", a.ID, err)
	}
	return nil
}

func (r *AlertRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM slo_alerts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to delete alert %s: %w", id, err)
	}
	return nil
}

func (r *AlertRepo) ListActive(ctx context.Context) ([]domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, series, level, business_impact, value, first_seen, last_notified
		FROM slo_alerts
		ORDER BY first_seen`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query alerts: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.Alert, 0)
	for rows.Next() {
		var a domain.Alert
		var level, impact string
		if err := rows.Scan(&a.ID, &a.Series, &level, &impact, &a.Value, &a.FirstSeen, &a.LastNotified); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan alert: %w", err)
		}
		a.Level = domain.AlertLevel(level)
		a.Impact = domain.BusinessImpact(impact)
		results = append(results, a)
	}
	return results, rows.Err()
}
