package ingest

import (
	"context"
	"time"

	"github.com/dvloznov/finance-agent/internal/apperr"
)

// withRetry retries fn with exponential backoff (base, factor 2) up to
// maxAttempts times, but only when fn's error is classified as a
// transient Store error — parse and validation failures are never
// retried, per spec.md §4.5.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !apperr.Retryable(err) {
			return err
		}
		delay := base << uint(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
