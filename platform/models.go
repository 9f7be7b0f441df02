// Package platform holds the governor-controlled billing configuration and
// the platform's accrued royalty.
package platform

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/types"
)

// Config is the governor-controlled billing configuration.
type Config struct {
	// SettlementToken is the fungible token deposits are made in.
	SettlementToken common.Address `json:"settlement_token"`

	// LockPeriod is how long after the last deposit unused funds stay locked.
	LockPeriod time.Duration `json:"lock_period"`

	// DefaultRoyaltyBps applies to providers without an override.
	DefaultRoyaltyBps uint64 `json:"default_royalty_bps"`

	// RoyaltyReceiver is the only account allowed to withdraw accrued royalty.
	RoyaltyReceiver common.Address `json:"royalty_receiver"`

	// DiscountBps is taken off the cost of users holding any DiscountCollections NFT.
	DiscountBps         uint64           `json:"discount_bps"`
	DiscountCollections []common.Address `json:"discount_collections"`

	// UsageOracle reports off-ledger usage; the zero address disables it.
	UsageOracle common.Address `json:"usage_oracle"`
}

// DefaultConfig returns the configuration a fresh platform starts with.
func DefaultConfig() Config {
	return Config{
		LockPeriod:        30 * 24 * time.Hour,
		DefaultRoyaltyBps: 100,
	}
}

// HasUsageOracle reports whether an oracle is configured.
func (c Config) HasUsageOracle() bool {
	return c.UsageOracle != (common.Address{})
}

// State is the platform singleton: configuration plus accrued royalty.
type State struct {
	types.Entity
	Config
	RoyaltyAccrued *uint256.Int `json:"royalty_accrued"`
}

// NewState returns a state with cfg and nothing accrued.
func NewState(cfg Config) *State {
	return &State{Config: cfg, RoyaltyAccrued: types.Zero()}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.DiscountCollections = slices.Clone(s.DiscountCollections)
	c.RoyaltyAccrued = types.Clone(s.RoyaltyAccrued)
	return &c
}
