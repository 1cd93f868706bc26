package api

import (
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/metrics"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// newBreaker trips a method group after consecutive 5xx/network failures so
// a dead upstream fails fast instead of burning retries and quota.
func newBreaker(group string, cfg config.BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[attemptResult] {
	failures := uint32(max(cfg.Failures, 1))
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(group).Set(0)

	return gobreaker.NewCircuitBreaker[attemptResult](gobreaker.Settings{
		Name:        group,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("method_group", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
