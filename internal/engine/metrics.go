package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// SLO: последнее рассчитанное значение по серии
	Compliance      *prometheus.GaugeVec
	BudgetRemaining *prometheus.GaugeVec
	BurnRate        *prometheus.GaugeVec

	// Evaluations: результат оценки серии (ok, collect_error, calc_error, busy)
	Evaluations *prometheus.CounterVec

	// Notifications: отправленные события по алертам и их результат
	Notifications *prometheus.CounterVec

	ActiveAlerts *prometheus.GaugeVec

	// Scheduler: длительность тика и пропущенные из-за перекрытия тики
	TickDuration prometheus.Histogram
	SkippedTicks prometheus.Counter

	// Saturation: состояние Circuit Breaker канала (0 - ок, 1 - выбило, 0.5 - half-open)
	CircuitBreakerState *prometheus.GaugeVec

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Compliance: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sloguard_compliance_percent",
			Help: "Last computed compliance per series.",
		}, []string{"series"}),

		BudgetRemaining: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sloguard_error_budget_remaining_percent",
			Help: "Remaining error budget per series.",
		}, []string{"series"}),

		BurnRate: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sloguard_burn_rate",
			Help: "Error budget burn rate per series (1 = exactly on budget).",
		}, []string{"series"}),

		Evaluations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sloguard_evaluations_total",
			Help: "Total number of series evaluations by result.",
		}, []string{"series", "result"}),

		Notifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sloguard_notifications_total",
			Help: "Total number of alert notifications by event and outcome.",
		}, []string{"event", "level", "outcome"}),

		ActiveAlerts: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sloguard_active_alerts",
			Help: "Number of active alerts by level.",
		}, []string{"level"}),

		TickDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "sloguard_tick_duration_seconds",
			Help:    "Histogram of evaluation tick durations.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),

		SkippedTicks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sloguard_skipped_ticks_total",
			Help: "Ticks skipped because the previous evaluation was still running.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sloguard_circuit_breaker_state",
			Help: "Current state of the notifier circuit breaker (0=closed, 1=open).",
		}, []string{"sink"}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sloguard_journal_buffer_utilization",
			Help: "Current number of measurements waiting in the journal buffer.",
		}),
	}
}
