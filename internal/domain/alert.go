package domain

import (
	"fmt"
	"time"
)

// AlertLevel уровень алерта
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// Weight — критический важнее предупреждения
func (l AlertLevel) Weight() int {
	if l == LevelCritical {
		return 2
	}
	return 1
}

// LevelFor сопоставляет статус замера уровню алерта. Для healthy алерта нет.
func LevelFor(s Status) (AlertLevel, bool) {
	switch s {
	case StatusWarning:
		return LevelWarning, true
	case StatusBreach:
		return LevelCritical, true
	default:
		return "", false
	}
}

// AlertKey — не более одного активного алерта на пару (series, level)
type AlertKey struct {
	Series string
	Level  AlertLevel
}

func (k AlertKey) String() string {
	return fmt.Sprintf("%s:%s", k.Series, k.Level)
}

type Alert struct {
	ID           string         `json:"id"`
	Series       string         `json:"series"`
	Level        AlertLevel     `json:"level"`
	Impact       BusinessImpact `json:"business_impact"`
	Value        float64        `json:"value"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastNotified time.Time      `json:"last_notified"`
}

func (a Alert) Key() AlertKey {
	return AlertKey{Series: a.Series, Level: a.Level}
}

// Priority — бизнес-скоринг алерта: уровень * влияние
func (a Alert) Priority() int {
	return a.Level.Weight() * a.Impact.Weight()
}

// ActiveAlert — представление активного алерта для API
type ActiveAlert struct {
	ID             string         `json:"id"`
	Series         string         `json:"series"`
	Level          AlertLevel     `json:"level"`
	StartTime      time.Time      `json:"start_time"`
	DurationMs     int64          `json:"duration_ms"`
	BusinessImpact BusinessImpact `json:"business_impact"`
	Priority       int            `json:"priority"`
}

// NotificationEvent — что именно произошло с алертом
type NotificationEvent string

const (
	EventFired      NotificationEvent = "fired"
	EventRenotified NotificationEvent = "renotified"
	EventResolved   NotificationEvent = "resolved"
)

// Причины снятия алерта
const (
	ReasonRecovered  = "recovered"
	ReasonSuperseded = "superseded"
	ReasonManual     = "manual"
)

// Notification уходит во внешние каналы (webhook, Redis, лог)
type Notification struct {
	ID     string            `json:"id"`
	Event  NotificationEvent `json:"event"`
	Reason string            `json:"reason,omitempty"`
	Alert  Alert             `json:"alert"`
	Target float64           `json:"target"`
	At     time.Time         `json:"at"`
}

// Message — короткий человекочитаемый текст для чатов
func (n Notification) Message() string {
	switch n.Event {
	case EventResolved:
		return fmt.Sprintf("[RESOLVED] %s %s (%s)", n.Alert.Series, n.Alert.Level, n.Reason)
	case EventRenotified:
		return fmt.Sprintf("[STILL %s] %s compliance %.3f%% (target %.3f%%), since %s",
			upper(n.Alert.Level), n.Alert.Series, n.Alert.Value, n.Target, n.Alert.FirstSeen.UTC().Format(time.RFC3339))
	default:
		return fmt.Sprintf("[%s] %s compliance %.3f%% (target %.3f%%), impact %s",
			upper(n.Alert.Level), n.Alert.Series, n.Alert.Value, n.Target, n.Alert.Impact)
	}
}

func upper(l AlertLevel) string {
	if l == LevelCritical {
		return "CRITICAL"
	}
	return "WARNING"
}
