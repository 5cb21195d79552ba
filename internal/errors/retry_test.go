package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}

	// When: retrying with three retries
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: it succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_OnRetryReportsEachWait(t *testing.T) {
	// Given: a function that always fails and a hook recording retries
	cfg := fastRetry(2)
	var retries []int
	var waits []time.Duration
	cfg.OnRetry = func(retry int, wait time.Duration, err error) {
		retries = append(retries, retry)
		waits = append(waits, wait)
		assert.EqualError(t, err, "down")
	}

	// When: retrying
	err := Retry(context.Background(), cfg, func() error { return errors.New("down") })

	// Then: the hook saw both retries with growing waits
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, retries)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	cause := errors.New("always fails")
	attempts := 0

	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	permanent := New(ErrCodeConfigInvalid, "bad model", nil)
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable
	attempts := 0

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	err := Retry(ctx, cfg, func() error {
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0

	got, err := RetryWithResult(context.Background(), fastRetry(3), func() ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return []float32{1, 0}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.LessOrEqual(t, cfg.InitialDelay, cfg.MaxDelay)
}
