package types

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestBps(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		bps    uint64
		want   uint64
	}{
		{"one percent", 200, 100, 2},
		{"floors dust", 99, 100, 0},
		{"full", 5000, 10000, 5000},
		{"zero rate", 5000, 0, 0},
		{"forty percent", 1000, 4000, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bps(NewAmount(tt.amount), tt.bps)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Uint64() != tt.want {
				t.Errorf("got %d, want %d", got.Uint64(), tt.want)
			}
		})
	}
}

func TestMulDivNoIntermediateOverflow(t *testing.T) {
	maxAmount := new(uint256.Int).SetAllOne()

	got, err := MulDiv(maxAmount, NewAmount(3), NewAmount(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Eq(maxAmount) {
		t.Errorf("got %s, want %s", got.Dec(), maxAmount.Dec())
	}

	if _, err := MulDiv(maxAmount, NewAmount(2), NewAmount(1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if _, err := MulDiv(NewAmount(1), NewAmount(1), Zero()); !errors.Is(err, ErrDivByZero) {
		t.Errorf("got %v, want ErrDivByZero", err)
	}
}

func TestAddSub(t *testing.T) {
	maxAmount := new(uint256.Int).SetAllOne()

	if _, err := Add(maxAmount, NewAmount(1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("Add: got %v, want ErrOverflow", err)
	}
	if _, err := Sub(NewAmount(1), NewAmount(2)); !errors.Is(err, ErrUnderflow) {
		t.Errorf("Sub: got %v, want ErrUnderflow", err)
	}
	if got := SatSub(NewAmount(1), NewAmount(2)); !got.IsZero() {
		t.Errorf("SatSub: got %s, want 0", got.Dec())
	}
	if got := SatSub(NewAmount(10), nil); got.Uint64() != 10 {
		t.Errorf("SatSub nil: got %s, want 10", got.Dec())
	}
}

func TestMinMax(t *testing.T) {
	if got := Max(NewAmount(50), NewAmount(80)); got.Uint64() != 80 {
		t.Errorf("Max: got %d, want 80", got.Uint64())
	}
	if got := Min(NewAmount(50), NewAmount(80)); got.Uint64() != 50 {
		t.Errorf("Min: got %d, want 50", got.Uint64())
	}
	if got := Max(nil, NewAmount(1)); got.Uint64() != 1 {
		t.Errorf("Max nil: got %d, want 1", got.Uint64())
	}
}

func TestUnits(t *testing.T) {
	tests := []struct {
		display  string
		decimals int32
		base     string
	}{
		{"1.5", 18, "1500000000000000000"},
		{"0.001", 18, "1000000000000000"},
		{"42", 0, "42"},
		{"0", 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			got, err := ParseUnits(tt.display, tt.decimals)
			if err != nil {
				t.Fatalf("ParseUnits: %v", err)
			}
			if got.Dec() != tt.base {
				t.Errorf("ParseUnits: got %s, want %s", got.Dec(), tt.base)
			}
			if back := FormatUnits(got, tt.decimals); back != tt.display {
				t.Errorf("FormatUnits: got %s, want %s", back, tt.display)
			}
		})
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, in := range []string{"-1", "abc", "0.0000001"} {
		if _, err := ParseUnits(in, 6); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseUnits(%q): got %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestFromBig(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := FromBig(tooBig); !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	got, err := FromBig(big.NewInt(7))
	if err != nil || got.Uint64() != 7 {
		t.Errorf("got %v, %v; want 7", got, err)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("")
	if err != nil || !got.IsZero() {
		t.Errorf("empty: got %v, %v", got, err)
	}
	if _, err := ParseAmount("1.5"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("fraction: got %v, want ErrInvalidAmount", err)
	}
	if String(nil) != "0" {
		t.Errorf("String(nil): got %q", String(nil))
	}
}
