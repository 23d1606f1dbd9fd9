package apperr

import (
	"errors"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindStoreTransient, "query failed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected Wrap to preserve cause via Unwrap")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil-ish plain error", errors.New("generic"), KindInternal},
		{"validation", New(KindValidation, "bad input"), KindValidation},
		{"wrapped not found", Wrap(KindNotFound, "missing", errors.New("cause")), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(KindConflict, "duplicate")
	if !Is(err, KindConflict) {
		t.Errorf("expected Is to match KindConflict")
	}
	if Is(err, KindValidation) {
		t.Errorf("expected Is to reject the wrong kind")
	}
	if Is(errors.New("plain"), KindConflict) {
		t.Errorf("expected Is to reject an unclassified error")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindStoreTransient, true},
		{KindLLMTransient, true},
		{KindLLMUnavailable, false},
		{KindValidation, false},
		{KindNotFound, false},
	}
	for _, tt := range tests {
		if got := Retryable(New(tt.kind, "x")); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestWithDetailsChains(t *testing.T) {
	err := New(KindValidation, "bad").WithDetails(map[string]any{"field": "amount"}).WithCorrelationID("abc-123")
	if err.Details["field"] != "amount" {
		t.Errorf("expected details to be attached")
	}
	if err.CorrelationID != "abc-123" {
		t.Errorf("expected correlation id to be attached")
	}
}
