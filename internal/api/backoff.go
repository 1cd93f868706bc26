package api

import (
	"math/rand/v2"
	"time"

	"league-tracker/internal/config"
)

// RetryPolicy is exponential backoff with proportional jitter:
// attempt n waits base*2^(n-1), capped at Max, plus up to Jitter of that.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Base:        time.Second,
		Max:         60 * time.Second,
		Jitter:      0.5,
	}
}

// RetryPolicyFromConfig fills unset bounds from DefaultRetryPolicy. Zero
// jitter is kept as given.
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseBackoff > 0 {
		p.Base = cfg.BaseBackoff
	}
	if cfg.MaxBackoff > 0 {
		p.Max = cfg.MaxBackoff
	}
	p.Jitter = max(cfg.Jitter, 0)
	return p
}

// Bounds returns the range Delay can pick from after the given failed
// attempt (1-based). Both ends are non-decreasing in attempt.
func (p RetryPolicy) Bounds(attempt int) (lo, hi time.Duration) {
	if attempt < 1 {
		attempt = 1
	}
	lo = p.Base
	for i := 1; i < attempt && lo < p.Max; i++ {
		lo *= 2
	}
	lo = min(lo, p.Max)
	hi = min(lo+time.Duration(float64(lo)*p.Jitter), p.Max)
	return lo, hi
}

// Delay picks a point in Bounds(attempt) using r in [0,1).
func (p RetryPolicy) Delay(attempt int, r float64) time.Duration {
	lo, hi := p.Bounds(attempt)
	return lo + time.Duration(float64(hi-lo)*r)
}

func defaultRand() float64 {
	return rand.Float64()
}
