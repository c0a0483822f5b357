package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_DefaultIsSingleAttempt(t *testing.T) {
	calls := 0
	n, err := DefaultRetryPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_RetriesUntilSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	var retried []int
	calls := 0

	n, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, _ error) { retried = append(retried, attempt) })

	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{2, 3}, retried)
}

func TestRetryPolicy_StopsAtBudget(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}
	n, err := p.Do(context.Background(), func(context.Context) error {
		return errors.New("down")
	}, nil)

	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, n)
}

func TestRetryPolicy_DeadlineNeverRetried(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5}
	calls := 0
	n, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_BackoffInterruptedByContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := p.Do(ctx, func(context.Context) error {
		return errors.New("transient")
	}, nil)

	assert.EqualError(t, err, "transient")
	assert.Equal(t, 1, n)
}
