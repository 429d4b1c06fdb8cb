package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cflux/flow/pkg/metrics"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker around a notifier.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 5, OpenTimeout: 30 * time.Second}
}

// Breaker stops calling a failing notifier until it recovers, so a broken
// delivery service does not slow down every workflow step.
type Breaker struct {
	next    Notifier
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewBreaker(next Notifier, settings BreakerSettings, logger *slog.Logger, m *metrics.Metrics) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Notifier circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Breaker{next: next, cb: cb, metrics: m}
}

func (b *Breaker) Notify(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Notify(ctx, msg)
	})

	switch {
	case err == nil:
		b.metrics.Notification("sent")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.metrics.Notification("rejected")
	default:
		b.metrics.Notification("failed")
	}

	return err
}

// State reports the current circuit state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
