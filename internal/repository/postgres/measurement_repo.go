package postgres

/*
Файл measurement_repo.go — журнал замеров SLO (append-only).
Пишется пачками из store.Journal, читается один раз при старте для прогрева MetricStore.
*/

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/sloguard/internal/domain"
)

type MeasurementRepo struct {
	pool *pgxpool.Pool
}

func NewMeasurementRepo(pool *pgxpool.Pool) *MeasurementRepo {
	return &MeasurementRepo{pool: pool}
}

func (r *MeasurementRepo) WriteBatch(ctx context.Context, ms []domain.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	query, vals := buildMeasurementInsert(ms)
	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write %d measurements: %w", len(ms), err)
	}
	return nil
}

// buildMeasurementInsert динамически строит запрос для пакетной вставки
func buildMeasurementInsert(ms []domain.Measurement) (string, []any) {
	// Количество колонок в таблице slo_measurements
	const numFields = 4

	var sb strings.Builder
	vals := make([]any, 0, len(ms)*numFields)
	for i, m := range ms {
		p := i * numFields
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4)
		vals = append(vals, m.Series, m.Timestamp, m.Value, string(m.Status))
	}

	// повторная запись того же замера (ретрай пачки) не должна ронять flush
	query := "INSERT INTO slo_measurements (series, ts, value, status) VALUES " +
		sb.String() + " ON CONFLICT (series, ts) DO NOTHING"
	return query, vals
}

func (r *MeasurementRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slo_measurements WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to prune measurements: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LoadSince выполняет "холодную загрузку" истории при старте, в порядке времени внутри серии
func (r *MeasurementRepo) LoadSince(ctx context.Context, since time.Time) ([]domain.Measurement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT series, ts, value, status
		FROM slo_measurements
		WHERE ts > $1
		ORDER BY series, ts`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query measurements: %w", err)
	}
	defer rows.Close()

	var out []domain.Measurement
	for rows.Next() {
		var m domain.Measurement
		var status string
		if err := rows.Scan(&m.Series, &m.Timestamp, &m.Value, &status); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan measurement: %w", err)
		}
		m.Status = domain.Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
