package store

import (
	"testing"

	"github.com/dvloznov/finance-agent/internal/domain"
)

func TestAccountIDsOf(t *testing.T) {
	accounts := []domain.Account{
		{AccountID: "acc-1"},
		{AccountID: "acc-2"},
	}
	got := accountIDsOf(accounts)
	want := []string{"acc-1", "acc-2"}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAccountIDsOfEmpty(t *testing.T) {
	if got := accountIDsOf(nil); len(got) != 0 {
		t.Errorf("accountIDsOf(nil) = %v, want empty", got)
	}
}
