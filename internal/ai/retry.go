package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retry defaults applied when the config leaves them unset
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// retryPolicy drives up to attempts calls, each under its own timeout
type retryPolicy struct {
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

func newRetryPolicy(attempts int, delay time.Duration, logger *slog.Logger) retryPolicy {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	return retryPolicy{attempts: attempts, delay: delay, logger: logger}
}

// backoff is the wait before the attempt following attempt.
// A 429 with Retry-After overrides the linear schedule.
func (p retryPolicy) backoff(attempt int, err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) && te.RateLimited() && te.RetryAfter > 0 {
		return te.RetryAfter
	}
	return p.delay * time.Duration(attempt)
}

// run calls fn until it succeeds, the attempts are exhausted or ctx ends.
// It returns the number of attempts made and the last error.
func (p retryPolicy) run(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = fn(attemptCtx)
		cancel()

		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, errors.Join(lastErr, ctx.Err())
		}
		if attempt == p.attempts {
			return attempt, lastErr
		}

		wait := p.backoff(attempt, lastErr)
		p.logger.WarnContext(ctx, "provider attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", lastErr))

		if err := sleep(ctx, wait); err != nil {
			return attempt, errors.Join(lastErr, err)
		}
	}
	return p.attempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
