// Package types provides value types shared across tierpay.
package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// BasisPoints is the denominator for every basis-point rate (100% = 10000).
const BasisPoints uint64 = 10_000

// Arithmetic errors. Amounts never wrap.
var (
	ErrOverflow      = errors.New("tierpay: arithmetic overflow")
	ErrUnderflow     = errors.New("tierpay: arithmetic underflow")
	ErrDivByZero     = errors.New("tierpay: division by zero")
	ErrInvalidAmount = errors.New("tierpay: invalid amount")
)

// Amounts are unsigned 256-bit integers in the token's smallest unit.
//
//	types.NewAmount(1500)           // 1500 base units
//	types.MustParseUnits("1.5", 18) // 1.5 tokens with 18 decimals

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// NewAmount returns v as an amount.
func NewAmount(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Clone copies a. A nil amount clones to zero.
func Clone(a *uint256.Int) *uint256.Int {
	if a == nil {
		return Zero()
	}
	return a.Clone()
}

// IsZero reports whether a is nil or zero.
func IsZero(a *uint256.Int) bool {
	return a == nil || a.IsZero()
}

// Add returns a + b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(Clone(a), Clone(b))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns a - b, failing when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(Clone(a), Clone(b))
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// SatSub returns a - b, or zero when b > a.
func SatSub(a, b *uint256.Int) *uint256.Int {
	z, underflow := new(uint256.Int).SubOverflow(Clone(a), Clone(b))
	if underflow {
		return Zero()
	}
	return z
}

// MulUint64 returns a * n.
func MulUint64(a *uint256.Int, n uint64) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(Clone(a), uint256.NewInt(n))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDiv returns floor(a * num / den) without intermediate overflow.
func MulDiv(a, num, den *uint256.Int) (*uint256.Int, error) {
	if IsZero(den) {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(Clone(a), Clone(num), den)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Bps returns floor(a * bps / 10000).
func Bps(a *uint256.Int, bps uint64) (*uint256.Int, error) {
	return Share(a, bps, BasisPoints)
}

// Share returns floor(a * part / denominator).
func Share(a *uint256.Int, part, denominator uint64) (*uint256.Int, error) {
	return MulDiv(a, uint256.NewInt(part), uint256.NewInt(denominator))
}

// Max returns the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if Clone(a).Lt(Clone(b)) {
		return Clone(b)
	}
	return Clone(a)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if Clone(a).Gt(Clone(b)) {
		return Clone(b)
	}
	return Clone(a)
}

// ──────────────────────────────────────────────────
// Text forms
// ──────────────────────────────────────────────────

// String renders a as a base-10 integer. A nil amount renders as "0".
func String(a *uint256.Int) string {
	return Clone(a).Dec()
}

// ParseAmount parses a base-10 integer amount.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return Zero(), nil
	}
	z, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	return z, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) *uint256.Int {
	z, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return z
}

// FormatUnits renders a base-unit amount as a decimal token quantity,
// e.g. FormatUnits(1500000000000000000, 18) = "1.5".
func FormatUnits(a *uint256.Int, decimals int32) string {
	return decimal.NewFromBigInt(Clone(a).ToBig(), -decimals).String()
}

// ParseUnits converts a decimal token quantity into base units. Quantities
// with more fractional digits than decimals are rejected.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	return FromBig(shifted.BigInt())
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals int32) *uint256.Int {
	z, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return z
}

// FromBig converts a non-negative big integer, failing above 2^256-1.
func FromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return Zero(), nil
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", ErrInvalidAmount)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}
