package provider

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/types"
)

// Tier table errors.
var (
	ErrTierLengthMismatch = errors.New("tierpay: tier thresholds and rates differ in length")
	ErrTiersNotAscending  = errors.New("tierpay: tier thresholds must be strictly ascending")
)

// Tier prices the band of cumulative usage ending at Threshold (inclusive).
// The band starts just above the previous tier's threshold, or at zero.
type Tier struct {
	Threshold uint64       `json:"threshold"`
	Rate      *uint256.Int `json:"rate"`
}

// Tiers is a graduated price table ordered by ascending Threshold.
type Tiers []Tier

// NewTiers pairs thresholds with per-unit rates and validates the ordering.
// An empty table is valid and prices all usage at the fallback rate.
func NewTiers(thresholds []uint64, rates []*uint256.Int) (Tiers, error) {
	if len(thresholds) != len(rates) {
		return nil, fmt.Errorf("%w: %d thresholds, %d rates", ErrTierLengthMismatch, len(thresholds), len(rates))
	}
	tiers := make(Tiers, len(thresholds))
	for i := range thresholds {
		tiers[i] = Tier{Threshold: thresholds[i], Rate: types.Clone(rates[i])}
	}
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	return tiers, nil
}

// Validate checks that thresholds strictly ascend.
func (t Tiers) Validate() error {
	for i := 1; i < len(t); i++ {
		if t[i].Threshold <= t[i-1].Threshold {
			return fmt.Errorf("%w: tier %d threshold %d after %d",
				ErrTiersNotAscending, i, t[i].Threshold, t[i-1].Threshold)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t Tiers) Clone() Tiers {
	if t == nil {
		return nil
	}
	c := make(Tiers, len(t))
	for i, tier := range t {
		c[i] = Tier{Threshold: tier.Threshold, Rate: types.Clone(tier.Rate)}
	}
	return c
}

// Cost walks the table from prior (units already billed) across the next
// units. Each unit is charged at the rate of the band it falls in; units
// beyond the last threshold, or all units when the table is empty, are
// charged at fallback.
func (t Tiers) Cost(prior, units uint64, fallback *uint256.Int) (*uint256.Int, error) {
	cost := types.Zero()
	pos, remaining := prior, units

	for _, tier := range t {
		if remaining == 0 {
			break
		}
		if pos >= tier.Threshold {
			continue
		}
		band := min(tier.Threshold-pos, remaining)
		if err := addBand(cost, tier.Rate, band); err != nil {
			return nil, err
		}
		pos += band
		remaining -= band
	}

	if remaining > 0 {
		if err := addBand(cost, fallback, remaining); err != nil {
			return nil, err
		}
	}
	return cost, nil
}

func addBand(acc, rate *uint256.Int, units uint64) error {
	charge, err := types.MulUint64(rate, units)
	if err != nil {
		return err
	}
	if _, overflow := acc.AddOverflow(acc, charge); overflow {
		return types.ErrOverflow
	}
	return nil
}
