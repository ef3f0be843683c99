package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/sloguard/internal/domain"
	"golang.org/x/time/rate"
)

type ReliabilityOptions struct {
	Name        string
	RatePerSec  float64
	Burst       int
	Attempts    uint
	CallTimeout time.Duration

	// Circuit Breaker
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBMaxFailures uint32
}

func (o ReliabilityOptions) withDefaults() ReliabilityOptions {
	if o.Name == "" {
		o.Name = "notifier"
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.CBMaxRequests == 0 {
		o.CBMaxRequests = 3
	}
	if o.CBInterval <= 0 {
		o.CBInterval = time.Minute
	}
	if o.CBTimeout <= 0 {
		o.CBTimeout = 30 * time.Second
	}
	if o.CBMaxFailures == 0 {
		o.CBMaxFailures = 5
	}
	return o
}

// ReliableNotifier оборачивает канал: Rate Limiter -> Circuit Breaker -> Retries с таймаутом на попытку.
type ReliableNotifier struct {
	next    Notifier
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	opts    ReliabilityOptions
}

// NewReliableNotifier; breakerState (может быть nil) получает 0 - closed, 0.5 - half-open, 1 - open
func NewReliableNotifier(next Notifier, opts ReliabilityOptions, breakerState prometheus.Gauge) *ReliableNotifier {
	opts = opts.withDefaults()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.CBMaxRequests,
		Interval:    opts.CBInterval,
		Timeout:     opts.CBTimeout, // через сколько CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.CBMaxFailures
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if breakerState == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				breakerState.Set(1)
			case gobreaker.StateHalfOpen:
				breakerState.Set(0.5)
			default:
				breakerState.Set(0)
			}
		},
	})

	return &ReliableNotifier{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		opts:    opts,
	}
}

func (w *ReliableNotifier) Notify(ctx context.Context, n domain.Notification) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker вокруг всей серии ретраев
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.opts.Attempts),
			retry.DelayType(func(attempt uint, err error, config retry.DelayContext) time.Duration {
				// получатель сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(attempt, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
			defer cancel()
			return w.next.Notify(tCtx, n)
		})
	})
	return err
}

// State — текущее состояние предохранителя
func (w *ReliableNotifier) State() gobreaker.State {
	return w.cb.State()
}
