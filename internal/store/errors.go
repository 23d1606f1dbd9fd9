package store

import (
	"context"
	"errors"

	"github.com/dvloznov/finance-agent/internal/apperr"
	"google.golang.org/api/googleapi"
)

// classify wraps a raw BigQuery/transport error as apperr.KindStoreTransient
// when it looks retryable (5xx, rate-limited, or a context deadline the
// caller can legitimately retry against), otherwise as apperr.KindInternal.
// The ingestion orchestrator's retry policy (spec.md §4.5) keys off this.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindStoreTransient, "store operation timed out", err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503, 504:
			return apperr.Wrap(apperr.KindStoreTransient, "transient BigQuery error", err)
		}
	}
	return apperr.Wrap(apperr.KindInternal, "store operation failed", err)
}
