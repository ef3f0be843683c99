package domain

import "time"

// Status — итог оценки SLO на момент замера
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusBreach  Status = "breach"
)

// Trend направление изменения compliance относительно прошлого замера
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// Measurement — неизменяемый замер серии. Передается только по значению.
type Measurement struct {
	Series    string    `json:"series"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"` // compliance, %
	Status    Status    `json:"status"`
}

// ErrorBudget вычисляется на каждом замере и отдельно не хранится.
type ErrorBudget struct {
	AllowedErrorRate   float64    `json:"allowed_error_rate"`
	Consumed           float64    `json:"consumed"`  // [0, 100]
	Remaining          float64    `json:"remaining"` // 100 - Consumed
	BurnRate           float64    `json:"burn_rate"`
	EstimatedDepletion *time.Time `json:"estimated_depletion,omitempty"`
}

// StatusView — то, что видит оператор по конкретной серии
type StatusView struct {
	Series               string         `json:"series"`
	Status               Status         `json:"status"`
	Value                float64        `json:"value"`
	Target               float64        `json:"target"`
	ErrorBudgetRemaining float64        `json:"error_budget_remaining"`
	BurnRate             float64        `json:"burn_rate"`
	Trend                Trend          `json:"trend"`
	EstimatedDepletion   *time.Time     `json:"estimated_depletion,omitempty"`
	BusinessImpact       BusinessImpact `json:"business_impact"`
	LastUpdated          time.Time      `json:"last_updated"`
}
