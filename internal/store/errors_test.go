package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/finance-agent/internal/apperr"
	"google.golang.org/api/googleapi"
)

func TestClassifyNil(t *testing.T) {
	if classify(nil) != nil {
		t.Error("expected classify(nil) to return nil")
	}
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	err := classify(context.DeadlineExceeded)
	if !apperr.Is(err, apperr.KindStoreTransient) {
		t.Errorf("expected KindStoreTransient for a deadline-exceeded error, got %v", apperr.KindOf(err))
	}
}

func TestClassifyGoogleAPIErrorCodes(t *testing.T) {
	tests := []struct {
		code int
		want apperr.Kind
	}{
		{429, apperr.KindStoreTransient},
		{500, apperr.KindStoreTransient},
		{503, apperr.KindStoreTransient},
		{400, apperr.KindInternal},
		{404, apperr.KindInternal},
	}
	for _, tt := range tests {
		err := classify(&googleapi.Error{Code: tt.code, Message: "boom"})
		if got := apperr.KindOf(err); got != tt.want {
			t.Errorf("classify(code=%d) kind = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestClassifyUnrecognizedErrorIsInternal(t *testing.T) {
	err := classify(errors.New("something else went wrong"))
	if !apperr.Is(err, apperr.KindInternal) {
		t.Errorf("expected KindInternal for an unrecognized error, got %v", apperr.KindOf(err))
	}
}
