package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy describes how a failing call is repeated.
type RetryPolicy struct {
	// BackOff yields the delay before each retry. backoff.Stop ends retrying.
	BackOff backoff.BackOff

	// MaxAttempts bounds the total number of calls. Zero or less means no
	// bound.
	MaxAttempts int

	// Retryable reports whether err warrants another attempt. A nil
	// Retryable retries every error.
	Retryable func(err error) bool

	// OnRetry is invoked before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep defaults to the real-time Sleep.
	Sleep SleepFunc
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// bound is reached, or ctx is cancelled. It returns the number of calls made
// and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	if p.BackOff != nil {
		p.BackOff.Reset()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return attempt, err
		}

		var delay time.Duration
		if p.BackOff != nil {
			delay = p.BackOff.NextBackOff()
			if delay == backoff.Stop {
				return attempt, err
			}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
	}
}

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call, or the last error
// if all attempts fail. The function respects context cancellation between
// retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         baseDelay * (1 << 10),
	}
	_, err := RetryPolicy{BackOff: bo, MaxAttempts: maxAttempts}.Do(ctx, fn)
	return err
}
