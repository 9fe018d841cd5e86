package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is matched (errors.Is) by the error returned when every retry failed.
var ErrExhausted = errors.New("retries exhausted")

// backoffFactor multiplies the delay after every failed attempt.
const backoffFactor = 2

type policy struct {
	retries  int
	delay    time.Duration
	maxDelay time.Duration
	onRetry  func(attempt int, err error, delay time.Duration)
}

// next returns the delay following d, capped at maxDelay.
func (p *policy) next(d time.Duration) time.Duration {
	return min(d*backoffFactor, p.maxDelay)
}

// Option tunes a retry loop.
type Option func(*policy)

// WithMaxRetries sets how often a failed attempt is repeated.
func WithMaxRetries(n int) Option {
	return func(p *policy) { p.retries = n }
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(p *policy) { p.delay = d }
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(p *policy) { p.maxDelay = d }
}

// WithOnRetry registers a callback invoked after every failed, retryable attempt.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *policy) { p.onRetry = fn }
}

// WithExponentialBackoff runs operation until it succeeds, returns a Fatal
// error, ctx ends, or the retries are used up. The delay doubles after each
// failure. Defaults: 5 retries, 1s initial delay, 30s maximum delay.
func WithExponentialBackoff(ctx context.Context, operation func() error, opts ...Option) error {
	p := &policy{retries: 5, delay: time.Second, maxDelay: 30 * time.Second}
	for _, opt := range opts {
		opt(p)
	}

	delay := p.delay
	var lastErr error
	for attempt := 1; attempt <= p.retries+1; attempt++ {
		if lastErr = operation(); lastErr == nil {
			return nil
		}
		if IsFatal(lastErr) {
			return fmt.Errorf("fatal error (not retrying): %w", lastErr)
		}
		if attempt > p.retries {
			break
		}

		if p.onRetry != nil {
			p.onRetry(attempt, lastErr, delay)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
		delay = p.next(delay)
	}
	return &exhaustedError{attempts: p.retries + 1, err: lastErr}
}

type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.attempts, e.err)
}

func (e *exhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.err}
}

// FatalError marks an error that retrying cannot fix.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so that retry loops stop on it. Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err or anything it wraps was marked Fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
