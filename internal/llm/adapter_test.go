package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/apperr"
	"github.com/dvloznov/finance-agent/internal/tools"
)

type stubProvider struct {
	resp ChatResponse
	err  error
}

func (s *stubProvider) Chat(ctx context.Context, messages []Message, schemas []tools.Schema) (ChatResponse, error) {
	return s.resp, s.err
}

func (s *stubProvider) Name() string { return "stub" }

func TestAdapterChatPassesThroughOnSuccess(t *testing.T) {
	provider := &stubProvider{resp: ChatResponse{AssistantText: "hi", StopReason: StopEndTurn}}
	a := NewAdapter(provider, time.Second)
	resp, err := a.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.AssistantText != "hi" {
		t.Errorf("AssistantText = %q", resp.AssistantText)
	}
}

func TestAdapterChatClassifiesRateLimitAsTransient(t *testing.T) {
	provider := &stubProvider{err: &RateLimitError{Provider: "stub", RetryAfter: 7 * time.Second}}
	a := NewAdapter(provider, time.Second)
	_, err := a.Chat(context.Background(), nil, nil)
	if !apperr.Is(err, apperr.KindLLMTransient) {
		t.Errorf("expected KindLLMTransient, got %v", apperr.KindOf(err))
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if secs, ok := ae.Details["retry_after_seconds"].(float64); !ok || secs != 7 {
		t.Errorf("Details[retry_after_seconds] = %v, want 7", ae.Details["retry_after_seconds"])
	}
}

func TestAdapterChatClassifiesDeadlineExceededAsTransient(t *testing.T) {
	provider := &stubProvider{err: context.DeadlineExceeded}
	a := NewAdapter(provider, time.Second)
	_, err := a.Chat(context.Background(), nil, nil)
	if !apperr.Is(err, apperr.KindLLMTransient) {
		t.Errorf("expected KindLLMTransient for a timed-out context, got %v", apperr.KindOf(err))
	}
}

func TestAdapterChatClassifiesOtherErrorsAsUnavailable(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	a := NewAdapter(provider, time.Second)
	_, err := a.Chat(context.Background(), nil, nil)
	if !apperr.Is(err, apperr.KindLLMUnavailable) {
		t.Errorf("expected KindLLMUnavailable, got %v", apperr.KindOf(err))
	}
}

func TestNewAdapterDefaultsNonPositiveTimeout(t *testing.T) {
	a := NewAdapter(&stubProvider{}, 0)
	if a.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want DefaultTimeout", a.timeout)
	}
	a = NewAdapter(&stubProvider{}, -5*time.Second)
	if a.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want DefaultTimeout for negative input", a.timeout)
	}
}

func TestAdapterName(t *testing.T) {
	a := NewAdapter(&stubProvider{}, time.Second)
	if a.Name() != "stub" {
		t.Errorf("Name() = %q, want stub", a.Name())
	}
}
