package alerting

import (
	"context"
	"errors"

	"github.com/xela07ax/sloguard/internal/domain"
	"go.uber.org/zap"
)

// Notifier — внешний канал оповещений (webhook, чат, шина событий)
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// LogNotifier пишет оповещения в структурированный лог. Работает всегда, даже без внешних каналов.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("alerts")}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("alert_id", n.Alert.ID),
		zap.String("series", n.Alert.Series),
		zap.String("level", string(n.Alert.Level)),
		zap.String("event", string(n.Event)),
		zap.Float64("value", n.Alert.Value),
		zap.Float64("target", n.Target),
		zap.String("impact", string(n.Alert.Impact)),
	}
	if n.Reason != "" {
		fields = append(fields, zap.String("reason", n.Reason))
	}

	switch {
	case n.Event == domain.EventResolved:
		l.logger.Info(n.Message(), fields...)
	case n.Alert.Level == domain.LevelCritical:
		l.logger.Error(n.Message(), fields...)
	default:
		l.logger.Warn(n.Message(), fields...)
	}
	return nil
}

// Sink — именованный канал. Имя попадает в NotificationError.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Fanout рассылает оповещение во все каналы; отказ одного не мешает остальным.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notifier.Notify(ctx, n); err != nil {
			errs = append(errs, &domain.NotificationError{AlertID: n.Alert.ID, Sink: s.Name, Err: err})
		}
	}
	return errors.Join(errs...)
}
