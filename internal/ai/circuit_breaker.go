package ai

import (
	"fmt"

	"jobpulse/internal/config"
	"jobpulse/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// providerBreaker wraps raw provider invocations with a circuit breaker.
// Rate-limit signals are NOT failures here: the dispatcher handles those by
// rotating credentials, and counting them would trip the breaker exactly
// when rotation is doing its job. The breaker watches transport failures.
type providerBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

func newProviderBreaker[T any](name string, cfg config.CircuitBreakerConfig, logger *errors.Logger) *providerBreaker[T] {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("LLM-%s", name),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isRateLimitSignal(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())
			}
		},
	}

	return &providerBreaker[T]{
		cb: gobreaker.NewCircuitBreaker[T](settings),
	}
}

// Execute runs fn with circuit breaker protection. A nil breaker (disabled
// in config) executes the function directly.
func (pb *providerBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	if pb == nil || pb.cb == nil {
		return fn()
	}
	return pb.cb.Execute(fn)
}

// IsOpen reports whether the breaker is rejecting calls.
func (pb *providerBreaker[T]) IsOpen() bool {
	if pb == nil || pb.cb == nil {
		return false
	}
	return pb.cb.State() == gobreaker.StateOpen
}

// Stats returns breaker statistics for the stats endpoint.
func (pb *providerBreaker[T]) Stats() map[string]any {
	if pb == nil || pb.cb == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"name":    pb.cb.Name(),
		"state":   pb.cb.State().String(),
		"counts":  pb.cb.Counts(),
		"enabled": true,
	}
}

// isBreakerRejection reports whether err is the breaker refusing the call
// (open state or half-open overflow) rather than a provider outcome.
func isBreakerRejection(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
