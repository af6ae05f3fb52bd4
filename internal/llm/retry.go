package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often a model call is attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// CallTimeout bounds a single attempt; zero leaves only the caller's deadline.
	CallTimeout time.Duration
	// RetryFormat also retries *FormatError results.
	RetryFormat bool
}

// DefaultRetryPolicy makes 3 attempts of at most 45s with 200ms, 400ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, CallTimeout: 45 * time.Second}
}

// Budget is the longest one Retry call can take under p. It is zero when
// attempts are not bounded by CallTimeout.
func (p RetryPolicy) Budget() time.Duration {
	if p.CallTimeout <= 0 {
		return 0
	}
	attempts := max(p.MaxAttempts, 1)
	total := time.Duration(attempts) * p.CallTimeout
	for attempt := range attempts - 1 {
		total += p.BaseDelay << attempt
	}
	return total
}

// WithFormatRetry returns a copy of p that also retries malformed output.
func (p RetryPolicy) WithFormatRetry() RetryPolicy {
	p.RetryFormat = true
	return p
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. The last error is returned wrapped.
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := range attempts {
		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !p.retryable(ctx, err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == attempts-1 {
			break
		}

		log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("llm call failed, retrying")

		delay := p.BaseDelay << attempt
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s after %d attempts: %w", op, attempts, err)
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func (p RetryPolicy) retryable(ctx context.Context, err error) bool {
	// A timed out attempt is worth repeating while the caller still waits.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return true
	}
	var formatErr *FormatError
	if errors.As(err, &formatErr) {
		return p.RetryFormat
	}
	return IsRetryable(err)
}
