package sweep

import (
	"context"
	"errors"
	"time"
)

// #region policy

// RetryPolicy bounds how often a submission is attempted. Deadline and
// cancellation errors end the loop immediately.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1,lte=5"`
	Backoff     time.Duration `yaml:"backoff"`
}

// DefaultRetryPolicy submits once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Backoff: 2 * time.Second}
}

// #endregion policy

// #region do

// Do calls fn until it succeeds, returns a non-retryable error or the attempt
// budget is spent. It returns the number of attempts made and the last error.
// onRetry, if set, is called before each extra attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, onRetry func(attempt int, err error)) (int, error) {
	attempts := max(p.MaxAttempts, 1)
	var err error
	for n := 1; ; n++ {
		err = fn(ctx)
		if err == nil || n >= attempts || !retryable(ctx, err) {
			return n, err
		}
		if onRetry != nil {
			onRetry(n+1, err)
		}
		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff * time.Duration(n))
			select {
			case <-ctx.Done():
				timer.Stop()
				return n, err
			case <-timer.C:
			}
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}

// #endregion do
