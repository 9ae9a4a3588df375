package dataerr

import (
	"context"
	"time"
)

// DefaultRetryAttempts bounds how many times WithRetry runs an operation.
const DefaultRetryAttempts = 3

// WithRetry runs op up to maxAttempts times, classifying each failure. Only
// retryable failures are retried, with a fixed delay between attempts. The
// classified error from the final attempt is returned on exhaustion.
func WithRetry(ctx context.Context, op func(context.Context) error, maxAttempts int, delay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var classified *Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		classified = Classify(err)
		if !classified.IsRetryable() || attempt == maxAttempts {
			return classified
		}

		select {
		case <-ctx.Done():
			return Classify(ctx.Err())
		case <-time.After(delay):
		}
	}
	return classified
}
