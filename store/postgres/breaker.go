package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/metrics"
	"github.com/sony/gobreaker"
)

// BreakerConfig controls when database calls stop being attempted
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval clears the failure counts while closed
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig suits a database that is either up or restarting
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 5,
	}
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	metrics.DatabaseBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.DatabaseBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn("Database circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// isSuccessful does not hold a cancelled request against the database.
// Deadlines still count as failures.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// ErrUnavailable is returned without touching the database while the
// breaker is open
var ErrUnavailable = errors.New("database unavailable")

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errors.Join(ErrUnavailable, err)
		}
		return zero, err
	}
	value, _ := result.(T)
	return value, nil
}
