package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RateLimitError signals a provider 429 carrying the server's suggested
// wait. It is handled by the retry loop, not surfaced to callers, unless
// the rate-limit budget itself runs out.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s: %s", e.RetryAfter, e.Message)
}

// RetryPolicy controls the backoff loop around provider calls.
//
// Generic failures back off exponentially (base delay doubling per attempt)
// up to MaxAttempts. Rate-limit responses take a distinct path: the loop
// sleeps the server-suggested retry_after plus a fixed buffer, and such
// waits do not consume the generic attempt budget. MaxRateLimitWaits caps
// that separate budget so a permanently throttled provider cannot hold a
// batch forever.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	RateLimitBuffer   time.Duration
	MaxRateLimitWaits int

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.RateLimitBuffer <= 0 {
		p.RateLimitBuffer = time.Second
	}
	if p.MaxRateLimitWaits < 1 {
		p.MaxRateLimitWaits = 3
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Do runs fn under the policy, returning its first success or the last error
// once both budgets are exhausted.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	p = p.withDefaults()

	delay := p.BaseDelay
	attempt := 1
	rateLimitWaits := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *RateLimitError
		if errors.As(err, &rle) {
			rateLimitWaits++
			if rateLimitWaits > p.MaxRateLimitWaits {
				return fmt.Errorf("%s: rate limited after %d waits: %w", op, p.MaxRateLimitWaits, err)
			}
			if sleepErr := p.sleep(ctx, rle.RetryAfter+p.RateLimitBuffer); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if attempt >= p.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxAttempts, err)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
		attempt++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
