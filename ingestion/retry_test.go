package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingUntil(n int, attempts *int) func() error {
	return func() error {
		*attempts++
		if *attempts < n {
			return errors.New("temporary error")
		}
		return nil
	}
}

func policy(attempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: base}
}

func TestRetryPolicy_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt succeeds", func(t *testing.T) {
		attempts := 0
		require.NoError(t, policy(3, time.Millisecond).Do(ctx, nil, failingUntil(1, &attempts)))
		assert.Equal(t, 1, attempts)
	})

	t.Run("eventual success", func(t *testing.T) {
		attempts := 0
		require.NoError(t, policy(5, time.Millisecond).Do(ctx, nil, failingUntil(3, &attempts)))
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error", func(t *testing.T) {
		attempts := 0
		persistent := errors.New("embedding provider unavailable")
		err := policy(3, time.Millisecond).Do(ctx, nil, func() error {
			attempts++
			return persistent
		})
		assert.Equal(t, persistent, err)
		assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		attempts := 0
		cause := fmt.Errorf("%w: expected 2, received 1", ErrEmbeddingMismatch)
		err := policy(5, time.Millisecond).Do(ctx, nil, func() error {
			attempts++
			return Permanent(cause)
		})
		assert.Equal(t, cause, err)
		assert.ErrorIs(t, err, ErrEmbeddingMismatch)
		assert.Equal(t, 1, attempts)
	})

	t.Run("context error from op is not retried", func(t *testing.T) {
		attempts := 0
		err := policy(5, time.Millisecond).Do(ctx, nil, func() error {
			attempts++
			return fmt.Errorf("upsert: %w", context.DeadlineExceeded)
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, attempts)
	})

	t.Run("invalid attempts", func(t *testing.T) {
		for _, n := range []int{0, -1} {
			attempts := 0
			err := policy(n, time.Millisecond).Do(ctx, nil, failingUntil(1, &attempts))
			assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
			assert.Zero(t, attempts)
		}
	})
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestRetryPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := policy(10, 5*time.Millisecond).Do(ctx, nil, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts, "should stop when context is canceled")
}

func TestRetryPolicy_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := policy(10, 10*time.Millisecond).Do(ctx, nil, func() error {
		attempts++
		time.Sleep(30 * time.Millisecond)
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, attempts, 3)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 800*time.Millisecond, p.delay(4))
	assert.Equal(t, time.Second, p.delay(5))
	assert.Equal(t, time.Second, p.delay(60))

	unbounded := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	assert.Equal(t, DefaultMaxDelay, unbounded.delay(10))
}

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	last := time.Now()

	err := policy(5, 10*time.Millisecond).Do(context.Background(), nil, func() error {
		attempts++
		if attempts > 1 {
			delays = append(delays, time.Since(last))
		}
		last = time.Now()
		if attempts < 4 {
			return errors.New("error")
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, delays, 3)
	assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
}

func TestNormalizeVector(t *testing.T) {
	assert.Empty(t, NormalizeVector(nil))
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))

	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}
