package account

import (
	"testing"
	"time"

	"github.com/xraph/tierpay/types"
)

func TestAvailable(t *testing.T) {
	a := New([20]byte{7})
	a.TotalDeposited = types.NewAmount(1000)
	a.TotalUsed = types.NewAmount(200)

	if got := a.Available().Uint64(); got != 800 {
		t.Errorf("got %d, want 800", got)
	}

	c := a.Clone()
	c.TotalUsed.SetUint64(1000)
	if a.TotalUsed.Uint64() != 200 {
		t.Error("clone shares TotalUsed with the original")
	}
	if !c.Available().IsZero() {
		t.Errorf("clone available: got %d, want 0", c.Available().Uint64())
	}
}

func TestUnlockAt(t *testing.T) {
	deposit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Account{LastDepositAt: deposit}
	if got := a.UnlockAt(48 * time.Hour); !got.Equal(deposit.Add(48 * time.Hour)) {
		t.Errorf("got %v", got)
	}
}
