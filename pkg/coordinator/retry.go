package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy describes the backoff applied around external store writes.
type RetryPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	Log         zerolog.Logger
}

// DefaultRetryPolicy retries five times starting at 200ms, doubling each
// attempt.
func DefaultRetryPolicy(log zerolog.Logger) RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, Log: log}
}

// Do runs fn under exponential backoff. fn signals a transient failure by
// returning Transient(err); any other error aborts immediately. After the
// attempt budget is spent the last error is surfaced to the caller, so the
// triggering input is never silently dropped.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(p.MaxAttempts, retry.NewExponential(base))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && attempt <= int(p.MaxAttempts) {
			p.Log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("store write failed, backing off")
		}
		return err
	})
	if err != nil {
		p.Log.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("store write gave up")
	}
	return err
}

// Transient marks an error as retryable for Do.
func Transient(err error) error {
	return retry.RetryableError(err)
}
