package remote

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	maxAttempts = 3
	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second
)

// withRetry runs fn up to maxAttempts times, backing off exponentially
// with jitter between attempts. Only transient failures (transport, rate
// limit) are retried; everything else surfaces immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !Retryable(err) || attempt >= maxAttempts {
			return err
		}

		delay := backoffDelay(attempt, err)
		c.logger.Printf("%s attempt %d/%d failed (%v), retrying in %s", op, attempt, maxAttempts, err, delay.Truncate(time.Millisecond))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes the pause before the next attempt: exponential in
// the attempt number with ±50% jitter, capped, and never shorter than a
// server-provided Retry-After.
func backoffDelay(attempt int, err error) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	// Jitter in [0.5d, 1.5d) so simultaneous clients spread out.
	d = d/2 + time.Duration(rand.Int63n(int64(d)))

	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > d {
		d = rl.RetryAfter
	}
	return d
}
