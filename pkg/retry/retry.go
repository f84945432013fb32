package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff schedule. MaxAttempts <= 0 retries
// until the context is done or MaxElapsedTime passes.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy().InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultPolicy().Multiplier
	}

	b := ExponentialBackoff(p.InitialInterval, p.MaxInterval, p.MaxElapsedTime, p.Multiplier)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// RetryWithCallback runs fn until it succeeds, returns a Permanent error or the
// policy gives up. onRetry may be nil.
func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	attempt := 0
	operation := func() error {
		attempt++
		return fn()
	}

	notify := func(err error, next time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err, next)
		}
	}

	return backoff.RetryNotify(operation, policy.backOff(ctx), notify)
}
