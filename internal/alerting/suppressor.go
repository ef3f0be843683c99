package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/sloguard/internal/domain"
)

// DefaultSuppressionWindow — минимальный интервал между повторными оповещениями
const DefaultSuppressionWindow = 15 * time.Minute

// Transition — изменение состояния алерта, по которому надо оповестить и сохранить
type Transition struct {
	Event  domain.NotificationEvent
	Reason string
	Alert  domain.Alert
}

// Suppressor — конечный автомат (absent/active) на каждую пару (series, level).
// Состояние живет в памяти; персистентность делает вызывающий по списку Transition.
type Suppressor struct {
	mu     sync.Mutex
	window time.Duration
	active map[domain.AlertKey]*domain.Alert
	newID  func() string
}

func NewSuppressor(window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	return &Suppressor{
		window: window,
		active: make(map[domain.AlertKey]*domain.Alert),
		newID:  func() string { return uuid.New().String() },
	}
}

// Observe применяет статус очередного замера серии.
// Критический алерт вытесняет предупреждение той же серии, а не сосуществует с ним.
// Снимаются алерты только здоровым замером или вручную.
func (s *Suppressor) Observe(series string, status domain.Status, impact domain.BusinessImpact, value float64, now time.Time) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	level, firing := domain.LevelFor(status)
	if !firing {
		var out []Transition
		for _, l := range []domain.AlertLevel{domain.LevelCritical, domain.LevelWarning} {
			if t, ok := s.clearLocked(domain.AlertKey{Series: series, Level: l}, domain.ReasonRecovered); ok {
				out = append(out, t)
			}
		}
		return out
	}

	// warning при активном critical — тот же эпизод, уровень не понижаем до здорового замера
	if level == domain.LevelWarning {
		if _, ok := s.active[domain.AlertKey{Series: series, Level: domain.LevelCritical}]; ok {
			level = domain.LevelCritical
		}
	}

	var out []Transition
	if level == domain.LevelCritical {
		if t, ok := s.clearLocked(domain.AlertKey{Series: series, Level: domain.LevelWarning}, domain.ReasonSuperseded); ok {
			out = append(out, t)
		}
	}

	key := domain.AlertKey{Series: series, Level: level}
	current, ok := s.active[key]
	if !ok {
		a := &domain.Alert{
			ID:           s.newID(),
			Series:       series,
			Level:        level,
			Impact:       impact,
			Value:        value,
			FirstSeen:    now,
			LastNotified: now,
		}
		s.active[key] = a
		return append(out, Transition{Event: domain.EventFired, Alert: *a})
	}

	current.Value = value
	if now.Sub(current.LastNotified) < s.window {
		// тот же эпизод, оповещение проглатываем
		return out
	}
	current.LastNotified = now
	return append(out, Transition{Event: domain.EventRenotified, Alert: *current})
}

func (s *Suppressor) clearLocked(key domain.AlertKey, reason string) (Transition, bool) {
	a, ok := s.active[key]
	if !ok {
		return Transition{}, false
	}
	delete(s.active, key)
	return Transition{Event: domain.EventResolved, Reason: reason, Alert: *a}, true
}

// Resolve — ручное снятие алерта оператором по ID
func (s *Suppressor) Resolve(id string) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.active {
		if a.ID == id {
			t, _ := s.clearLocked(key, domain.ReasonManual)
			return t, nil
		}
	}
	return Transition{}, domain.ErrAlertNotFound
}

// ResolveKey снимает алерт по ключу (сигнал из Redis от соседней реплики или консоли)
func (s *Suppressor) ResolveKey(key domain.AlertKey) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.clearLocked(key, domain.ReasonManual)
	if !ok {
		return Transition{}, domain.ErrAlertNotFound
	}
	return t, nil
}

// Restore загружает активные алерты после рестарта. Для пары (series, level) побеждает первый,
// warning серии с восстановленным critical отбрасывается. Возвращает число восстановленных
// и отброшенные записи, которые вызывающему стоит удалить из хранилища.
func (s *Suppressor) Restore(alerts []domain.Alert) (int, []domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	critical := make(map[string]bool)
	for _, a := range alerts {
		if a.Level == domain.LevelCritical {
			critical[a.Series] = true
		}
	}

	restored := 0
	var stale []domain.Alert
	for _, a := range alerts {
		key := a.Key()
		if _, exists := s.active[key]; exists {
			stale = append(stale, a)
			continue
		}
		if a.Level == domain.LevelWarning && critical[a.Series] {
			stale = append(stale, a)
			continue
		}
		a := a
		s.active[key] = &a
		restored++
	}
	return restored, stale
}

// Active — активные алерты: сначала самые приоритетные для бизнеса, затем самые старые
func (s *Suppressor) Active() []domain.Alert {
	s.mu.Lock()
	out := make([]domain.Alert, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, *a)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if pi, pj := out[i].Priority(), out[j].Priority(); pi != pj {
			return pi > pj
		}
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Window — текущее окно подавления
func (s *Suppressor) Window() time.Duration {
	return s.window
}
