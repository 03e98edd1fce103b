package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig tunes the retry loop the Chain Client wraps around every
// JSON-RPC call: up to MaxAttempts tries with exponential backoff, plus
// a jitter fraction so a fleet of schedulers does not hammer a
// recovering endpoint in lockstep.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1 fraction of the delay randomized each way
}

// DefaultRetryConfig matches the RPC failure policy: three attempts with
// jittered exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry runs fn until it succeeds, the attempt budget is spent, or ctx
// is cancelled mid-backoff. The last attempt's error is returned.
func (cfg RetryConfig) run(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered(delay, cfg.Jitter)):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
	return lastErr
}

// Retry executes fn under cfg's backoff policy.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	return cfg.run(ctx, fn)
}

// jittered shifts d by up to ±(jitter × d).
func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
