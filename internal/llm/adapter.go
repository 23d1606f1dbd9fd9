package llm

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-agent/internal/apperr"
	"github.com/dvloznov/finance-agent/internal/tools"
)

// DefaultTimeout is spec.md §4.7's default request timeout.
const DefaultTimeout = 30 * time.Second

// Adapter wraps a single Provider with the timeout enforcement and error
// classification every provider needs identically, so individual Provider
// implementations only worry about wire-format translation.
type Adapter struct {
	provider Provider
	timeout  time.Duration
}

// NewAdapter builds an Adapter over provider. A zero or negative timeout
// falls back to DefaultTimeout.
func NewAdapter(provider Provider, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{provider: provider, timeout: timeout}
}

// Chat enforces the request timeout and classifies provider failures into
// the apperr taxonomy: rate limits and timeouts become KindLLMTransient
// (retryable, per apperr.Retryable), everything else KindLLMUnavailable.
func (a *Adapter) Chat(ctx context.Context, messages []Message, toolSchemas []tools.Schema) (ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.provider.Chat(ctx, messages, toolSchemas)
	if err == nil {
		return resp, nil
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		wrapped := apperr.Wrap(apperr.KindLLMTransient, a.provider.Name()+": rate limited", err)
		wrapped.WithDetails(map[string]any{"retry_after_seconds": rle.RetryAfter.Seconds()})
		return ChatResponse{StopReason: StopError}, wrapped
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ChatResponse{StopReason: StopError}, apperr.Wrap(apperr.KindLLMTransient, a.provider.Name()+": request timed out", err)
	}
	return ChatResponse{StopReason: StopError}, apperr.Wrap(apperr.KindLLMUnavailable, a.provider.Name()+": chat request failed", err)
}

// Name reports the wrapped provider's name, for logging.
func (a *Adapter) Name() string { return a.provider.Name() }
