// Package royalty models per-NFT royalty state and the transfer-fee policy:
// how a royalty is priced, who is exempt, and how it is split.
package royalty

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/id"
	"github.com/xraph/tierpay/types"
)

// DefaultDenominator is the default split denominator (basis points).
const DefaultDenominator = types.BasisPoints

// Token is the royalty state of one NFT.
type Token struct {
	types.Entity
	TokenID uint64 `json:"token_id"`

	// RoyaltyOwner receives the creator share and sets RoyaltyWei.
	RoyaltyOwner common.Address `json:"royalty_owner"`

	// RoyaltyWei is the royalty in the pool's quote asset (wei). Zero waives the fee.
	RoyaltyWei *uint256.Int `json:"royalty_wei"`

	// MintedOwner is the original recipient while their one-time transfer
	// exemption is unused, the zero address afterwards.
	MintedOwner common.Address `json:"minted_owner"`
}

// NewToken returns the record created when tokenID is minted to owner.
func NewToken(tokenID uint64, owner common.Address) *Token {
	return &Token{
		TokenID:      tokenID,
		RoyaltyOwner: owner,
		RoyaltyWei:   types.Zero(),
		MintedOwner:  owner,
	}
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.RoyaltyWei = types.Clone(t.RoyaltyWei)
	return &c
}

// Config is the admin-controlled transfer-fee configuration.
type Config struct {
	types.Entity

	ManufacturerBP uint64 `json:"manufacturer_bp"`
	PartnerBP      uint64 `json:"partner_bp"`
	CreatorBP      uint64 `json:"creator_bp"`
	Denominator    uint64 `json:"denominator"`

	// PartnerWallet receives the partner share; zero redirects it to the creator.
	PartnerWallet common.Address `json:"partner_wallet"`

	EnforcementEnabled       bool `json:"enforcement_enabled"`
	FounderPassExemptEnabled bool `json:"founder_pass_exempt_enabled"`
	MintedOwnerExemptEnabled bool `json:"minted_owner_exempt_enabled"`
	TreasuryFeeEnabled       bool `json:"treasury_fee_enabled"`

	// SettlementToken is the fungible token fees are paid in.
	SettlementToken common.Address `json:"settlement_token"`
	// Pair is the constant-product pool pricing SettlementToken against wei.
	Pair common.Address `json:"pair"`
	// Treasury receives the manufacturer share.
	Treasury common.Address `json:"treasury"`
	// FounderPass is the collection whose holders transfer fee-free.
	FounderPass common.Address `json:"founder_pass"`
}

// DefaultConfig returns the configuration a fresh gate starts with.
func DefaultConfig() Config {
	return Config{
		ManufacturerBP:           4000,
		PartnerBP:                3000,
		CreatorBP:                3000,
		Denominator:              DefaultDenominator,
		EnforcementEnabled:       true,
		FounderPassExemptEnabled: true,
		MintedOwnerExemptEnabled: true,
		TreasuryFeeEnabled:       true,
	}
}

// SplitsBalanced reports whether the three cuts sum to the denominator.
func (c *Config) SplitsBalanced() bool {
	return c.ManufacturerBP+c.PartnerBP+c.CreatorBP == c.Denominator
}

// Clone returns a copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Charge is the outcome of one gated transfer.
type Charge struct {
	ID        id.ChargeID    `json:"id"`
	TokenID   uint64         `json:"token_id"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Exemption Exemption      `json:"exemption,omitempty"`
	Required  *uint256.Int   `json:"required"`
	Shares    Shares         `json:"shares"`
}

// Exempt reports whether the transfer was waived.
func (c *Charge) Exempt() bool { return c.Exemption != ExemptNone }
