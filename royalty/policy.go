package royalty

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/types"
)

// Policy errors.
var (
	ErrSplitsMustSumToDenominator = errors.New("tierpay: royalty splits must sum to the denominator")
	ErrOracleUnavailable          = errors.New("tierpay: price oracle unavailable")
)

// Exemption names the rule that waived a transfer fee.
type Exemption string

const (
	ExemptNone                Exemption = ""
	ExemptMint                Exemption = "mint"
	ExemptEnforcementDisabled Exemption = "enforcement_disabled"
	ExemptMintedOwner         Exemption = "minted_owner"
	ExemptFounderPass         Exemption = "founder_pass"
	ExemptNoRoyalty           Exemption = "no_royalty"
)

// PassCheck reports whether an account holds at least one founder pass.
type PassCheck func(holder common.Address) (bool, error)

// Evaluate applies the exemption rules in order: enforcement switch,
// minted-owner waiver, founder pass held by either party, zero royalty.
// holds is only consulted when the founder-pass rule is reached.
func Evaluate(cfg *Config, tok *Token, from, to common.Address, holds PassCheck) (Exemption, error) {
	if !cfg.EnforcementEnabled {
		return ExemptEnforcementDisabled, nil
	}

	if cfg.MintedOwnerExemptEnabled && tok.MintedOwner != (common.Address{}) && from == tok.MintedOwner {
		return ExemptMintedOwner, nil
	}

	if cfg.FounderPassExemptEnabled && cfg.FounderPass != (common.Address{}) && holds != nil {
		for _, party := range []common.Address{from, to} {
			ok, err := holds(party)
			if err != nil {
				return ExemptNone, err
			}
			if ok {
				return ExemptFounderPass, nil
			}
		}
	}

	if types.IsZero(tok.RoyaltyWei) {
		return ExemptNoRoyalty, nil
	}
	return ExemptNone, nil
}

// Quote converts royaltyWei into settlement-token units at the pool's
// spot price: royaltyWei * reserveToken / reserveWei.
func Quote(royaltyWei *uint256.Int, r chain.Reserves, settlementToken common.Address) (*uint256.Int, error) {
	reserveToken, reserveWei := r.Reserve1, r.Reserve0
	if r.Token0 == settlementToken {
		reserveToken, reserveWei = r.Reserve0, r.Reserve1
	}
	if types.IsZero(reserveToken) || types.IsZero(reserveWei) {
		return nil, ErrOracleUnavailable
	}
	return types.MulDiv(royaltyWei, reserveToken, reserveWei)
}

// Shares is the division of a required amount among the three recipients.
type Shares struct {
	Manufacturer *uint256.Int `json:"manufacturer"`
	Partner      *uint256.Int `json:"partner"`
	Creator      *uint256.Int `json:"creator"`

	TreasuryWallet common.Address `json:"treasury_wallet"`
	PartnerWallet  common.Address `json:"partner_wallet"`
	CreatorWallet  common.Address `json:"creator_wallet"`
}

// Legs returns the non-zero payments, in manufacturer, partner, creator order.
func (s Shares) Legs() []chain.Leg {
	legs := make([]chain.Leg, 0, 3)
	for _, l := range []chain.Leg{
		{To: s.TreasuryWallet, Amount: s.Manufacturer},
		{To: s.PartnerWallet, Amount: s.Partner},
		{To: s.CreatorWallet, Amount: s.Creator},
	} {
		if !types.IsZero(l.Amount) {
			legs = append(legs, l)
		}
	}
	return legs
}

// Split divides required by the configured cuts. The manufacturer cut is
// zero while the treasury fee is off, and the partner cut goes to the
// creator while no partner wallet is set; the creator takes the remainder
// including rounding dust.
func Split(required *uint256.Int, cfg *Config, creator common.Address) (Shares, error) {
	if cfg.Denominator == 0 || !cfg.SplitsBalanced() {
		return Shares{}, ErrSplitsMustSumToDenominator
	}

	manufacturer := types.Zero()
	if cfg.TreasuryFeeEnabled {
		m, err := types.Share(required, cfg.ManufacturerBP, cfg.Denominator)
		if err != nil {
			return Shares{}, err
		}
		manufacturer = m
	}

	partner, err := types.Share(required, cfg.PartnerBP, cfg.Denominator)
	if err != nil {
		return Shares{}, err
	}

	rest, err := types.Sub(required, manufacturer)
	if err != nil {
		return Shares{}, err
	}
	creatorAmt, err := types.Sub(rest, partner)
	if err != nil {
		return Shares{}, err
	}

	partnerTo := cfg.PartnerWallet
	if partnerTo == (common.Address{}) {
		creatorAmt, err = types.Add(creatorAmt, partner)
		if err != nil {
			return Shares{}, err
		}
		partner = types.Zero()
	}

	return Shares{
		Manufacturer:   manufacturer,
		Partner:        partner,
		Creator:        creatorAmt,
		TreasuryWallet: cfg.Treasury,
		PartnerWallet:  partnerTo,
		CreatorWallet:  creator,
	}, nil
}
