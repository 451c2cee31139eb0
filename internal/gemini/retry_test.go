package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCaller(maxRetries int) (*Caller, *[]time.Duration) {
	c := NewCaller(maxRetries, 10*time.Second, zap.NewNop())
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestCaller_SucceedsAfterTwoRateLimits(t *testing.T) {
	c, _ := newTestCaller(3)

	calls := 0
	result, err := c.Call(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("rate limit exceeded (429)")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestCaller_ExhaustsRetries(t *testing.T) {
	c, _ := newTestCaller(3)

	calls := 0
	_, err := c.Call(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("429 too many requests")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "3 retries after the first attempt means 4 invocations")
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestCaller_EscalatingDelays(t *testing.T) {
	c, delays := newTestCaller(3)

	_, _ = c.Call(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("RESOURCE_EXHAUSTED")
	})

	require.Len(t, *delays, 3)
	assert.Equal(t, 10*time.Second, (*delays)[0])
	assert.Equal(t, 20*time.Second, (*delays)[1])
	assert.Equal(t, 30*time.Second, (*delays)[2])
}

func TestCaller_NonRetryableFailsImmediately(t *testing.T) {
	c, delays := newTestCaller(3)

	calls := 0
	_, err := c.Call(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("invalid request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestCaller_CanceledDuringBackoff(t *testing.T) {
	c := NewCaller(3, 10*time.Second, zap.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := c.Call(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("429")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(errors.New("rate limit exceeded (429)")))
	assert.True(t, IsRateLimit(errors.New("RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimit(errors.New("bad request")))
	assert.False(t, IsRateLimit(nil))
}
