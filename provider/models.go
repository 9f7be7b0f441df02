// Package provider holds service-provider pricing configuration and earnings.
package provider

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/types"
)

// Provider is a registered supplier of metered service.
//
// RoyaltyBps of zero means the platform default royalty applies. Balance is
// the provider's withdrawable earnings and outlives registration.
type Provider struct {
	types.Entity
	Address      common.Address `json:"address"`
	Registered   bool           `json:"registered"`
	RoyaltyBps   uint64         `json:"royalty_bps"`
	FallbackRate *uint256.Int   `json:"fallback_rate"`
	Balance      *uint256.Int   `json:"balance"`
	Tiers        Tiers          `json:"tiers"`
}

// New returns an unregistered provider with zero balance.
func New(addr common.Address) *Provider {
	return &Provider{
		Address:      addr,
		FallbackRate: types.Zero(),
		Balance:      types.Zero(),
	}
}

// Clone returns a deep copy.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	c := *p
	c.FallbackRate = types.Clone(p.FallbackRate)
	c.Balance = types.Clone(p.Balance)
	c.Tiers = p.Tiers.Clone()
	return &c
}

// Unregister clears every pricing field but keeps the balance withdrawable.
func (p *Provider) Unregister() {
	p.Registered = false
	p.RoyaltyBps = 0
	p.FallbackRate = types.Zero()
	p.Tiers = nil
}

// EffectiveRoyaltyBps returns the override if set, else platformDefault.
func (p *Provider) EffectiveRoyaltyBps(platformDefault uint64) uint64 {
	if p.RoyaltyBps != 0 {
		return p.RoyaltyBps
	}
	return platformDefault
}

// Cost prices units of consumption starting at the prior cumulative usage.
func (p *Provider) Cost(prior, units uint64) (*uint256.Int, error) {
	return p.Tiers.Cost(prior, units, p.FallbackRate)
}

// ListOpts filters provider listings.
type ListOpts struct {
	RegisteredOnly bool
	Limit          int
	Offset         int
}
