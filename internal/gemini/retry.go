package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// IsRateLimit classifies an error as a rate-limit signal. Only these are
// retried; everything else propagates immediately.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "rate limit")
}

// Caller wraps reasoner invocations with bounded backoff for rate-limit
// failures. The delay escalates linearly with the attempt number:
// base, 2x base, 3x base. The API's quota window recovers on a fixed
// cadence, not an exponential one.
type Caller struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a retrying caller. maxRetries counts retries after the
// first attempt, so maxRetries=3 allows 4 invocations total.
func NewCaller(maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Caller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Call invokes op, retrying on rate-limit failures up to the configured
// ceiling. Non-retryable failures return immediately.
func (c *Caller) Call(ctx context.Context, op func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimit(err) {
			return "", err
		}
		lastErr = err

		if attempt > c.maxRetries {
			break
		}

		delay := time.Duration(attempt) * c.baseDelay
		c.logger.Warn("Rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Int("remaining", c.maxRetries-attempt+1),
			zap.Duration("delay", delay))

		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("rate limit retries exhausted after %d attempts: %w", c.maxRetries+1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
