package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
)

const defaultRetryAttempts = 3

// retry runs op up to attempts times with exponential backoff. Only
// transient store facts (sentinel.Transient) are retried; anything else
// is returned as-is on the first failure. Exhaustion surfaces
// CodeUnavailable.
func retry(ctx context.Context, attempts int, op func() error) error {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(250*time.Millisecond),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	var last error
	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		last = err
		if !sentinel.Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation cancelled")
	case sentinel.Transient(err):
		return dErrors.Wrap(last, dErrors.CodeUnavailable, "store unavailable, retries exhausted")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "store operation failed")
}
