package google

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while an API is considered down.
var ErrCircuitOpen = errors.New("google api circuit open")

// Guard stops hammering an API that keeps failing.
type Guard struct {
	cb *gobreaker.CircuitBreaker[any]
}

func NewGuard(name string, failures uint32, timeout time.Duration, logger *zerolog.Logger) *Guard {
	if failures == 0 {
		failures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Guard{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Do runs fn through the breaker. A nil guard calls fn directly.
func (g *Guard) Do(fn func() error) error {
	if g == nil {
		return fn()
	}
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State reports the breaker state for health output.
func (g *Guard) State() string {
	if g == nil {
		return "disabled"
	}
	return g.cb.State().String()
}
