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
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}

	// When: retrying up to 3 times
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: third attempt succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	last := errors.New("still failing")
	attempts := 0

	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return last
	})

	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	// Given: a policy that only retries retryable OttoErrors
	cfg := fastRetry(5)
	cfg.RetryIf = IsRetryable
	attempts := 0

	// When: the function returns a validation error
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return ValidationError("bad input", nil)
	})

	// Then: no retries happen
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
}

func TestRetryWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, fastRetry(3), func() (int, error) {
		return 0, errors.New("unreachable")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetry(1), func() (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
