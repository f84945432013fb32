package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := RetryWithCallback(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		retried = append(retried, attempt)
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		return errors.New("always")
	}, nil)

	assert.EqualError(t, err, "always")
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("bad url")
	err := RetryWithCallback(context.Background(), fastPolicy(0), func() error {
		calls++
		return Permanent(boom)
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := RetryWithCallback(ctx, fastPolicy(0), func() error {
		return errors.New("down")
	}, nil)

	assert.Error(t, err)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
