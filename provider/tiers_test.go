package provider

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/types"
)

func amounts(vs ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		out[i] = types.NewAmount(v)
	}
	return out
}

func TestNewTiers(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []uint64
		rates      []*uint256.Int
		wantErr    error
	}{
		{"empty", nil, nil, nil},
		{"ascending", []uint64{100, 200}, amounts(1, 2), nil},
		{"length mismatch", []uint64{100, 200}, amounts(1), ErrTierLengthMismatch},
		{"equal thresholds", []uint64{100, 100}, amounts(1, 2), ErrTiersNotAscending},
		{"descending", []uint64{200, 100}, amounts(1, 2), ErrTiersNotAscending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTiers(tt.thresholds, tt.rates)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTiersCost(t *testing.T) {
	tiers, err := NewTiers([]uint64{100, 200}, amounts(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	fallback := types.NewAmount(5)

	tests := []struct {
		name  string
		prior uint64
		units uint64
		want  uint64
	}{
		{"first band only", 0, 50, 50},
		{"exact threshold", 0, 100, 100},
		{"spans two bands", 0, 150, 200},
		{"spans into fallback", 0, 250, 550},
		{"continues from prior", 100, 50, 100},
		{"prior inside band", 80, 40, 60},
		{"prior past table", 300, 10, 50},
		{"zero units", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tiers.Cost(tt.prior, tt.units, fallback)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Uint64() != tt.want {
				t.Errorf("got %d, want %d", got.Uint64(), tt.want)
			}
		})
	}
}

func TestEmptyTiersUseFallback(t *testing.T) {
	got, err := Tiers(nil).Cost(0, 7, types.NewAmount(3))
	if err != nil {
		t.Fatal(err)
	}
	if got.Uint64() != 21 {
		t.Errorf("got %d, want 21", got.Uint64())
	}

	got, err = Tiers(nil).Cost(0, 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Errorf("nil fallback: got %d, want 0", got.Uint64())
	}
}

func TestCostOverflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	if _, err := Tiers(nil).Cost(0, 2, huge); !errors.Is(err, types.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestUnregisterKeepsBalance(t *testing.T) {
	p := New([20]byte{1})
	p.Registered = true
	p.RoyaltyBps = 250
	p.FallbackRate = types.NewAmount(9)
	p.Balance = types.NewAmount(40)
	p.Tiers, _ = NewTiers([]uint64{10}, amounts(1))

	p.Unregister()

	if p.Registered || p.RoyaltyBps != 0 || !p.FallbackRate.IsZero() || p.Tiers != nil {
		t.Errorf("pricing not cleared: %+v", p)
	}
	if p.Balance.Uint64() != 40 {
		t.Errorf("balance: got %d, want 40", p.Balance.Uint64())
	}
	if got := p.EffectiveRoyaltyBps(100); got != 100 {
		t.Errorf("effective royalty: got %d, want 100", got)
	}
}
