package royalty

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/types"
)

var (
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	partner  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	kndx     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	weth     = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

func splitConfig() *Config {
	cfg := DefaultConfig()
	cfg.Treasury = treasury
	cfg.PartnerWallet = partner
	return &cfg
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name                           string
		mutate                         func(*Config)
		required                       uint64
		manufacturer, partner, creator uint64
	}{
		{"default cuts", nil, 1000, 400, 300, 300},
		{"treasury fee off", func(c *Config) { c.TreasuryFeeEnabled = false }, 1000, 0, 300, 700},
		{"no partner wallet", func(c *Config) { c.PartnerWallet = common.Address{} }, 1000, 400, 0, 600},
		{"zero partner cut", func(c *Config) { c.PartnerBP = 0; c.CreatorBP = 6000 }, 1000, 400, 0, 600},
		{"dust to creator", nil, 7, 2, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := splitConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			s, err := Split(types.NewAmount(tt.required), cfg, creator)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Manufacturer.Uint64() != tt.manufacturer || s.Partner.Uint64() != tt.partner || s.Creator.Uint64() != tt.creator {
				t.Errorf("got %d/%d/%d, want %d/%d/%d",
					s.Manufacturer.Uint64(), s.Partner.Uint64(), s.Creator.Uint64(),
					tt.manufacturer, tt.partner, tt.creator)
			}
			total := s.Manufacturer.Uint64() + s.Partner.Uint64() + s.Creator.Uint64()
			if total != tt.required {
				t.Errorf("shares sum to %d, want %d", total, tt.required)
			}
		})
	}
}

func TestSplitRejectsUnbalancedCuts(t *testing.T) {
	cfg := splitConfig()
	cfg.Denominator = 20000
	if _, err := Split(types.NewAmount(100), cfg, creator); !errors.Is(err, ErrSplitsMustSumToDenominator) {
		t.Errorf("got %v, want ErrSplitsMustSumToDenominator", err)
	}
}

func TestLegsSkipZero(t *testing.T) {
	cfg := splitConfig()
	cfg.TreasuryFeeEnabled = false
	cfg.PartnerWallet = common.Address{}
	s, err := Split(types.NewAmount(10), cfg, creator)
	if err != nil {
		t.Fatal(err)
	}
	legs := s.Legs()
	if len(legs) != 1 || legs[0].To != creator || legs[0].Amount.Uint64() != 10 {
		t.Errorf("got %+v, want one creator leg of 10", legs)
	}
}

func TestQuote(t *testing.T) {
	// 1 wei buys 2000 token units.
	reserves := chain.Reserves{
		Reserve0: types.NewAmount(2_000_000),
		Reserve1: types.NewAmount(1_000),
		Token0:   kndx,
	}
	got, err := Quote(types.NewAmount(3), reserves, kndx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Uint64() != 6000 {
		t.Errorf("token0 side: got %d, want 6000", got.Uint64())
	}

	flipped := chain.Reserves{Reserve0: reserves.Reserve1, Reserve1: reserves.Reserve0, Token0: weth}
	got, err = Quote(types.NewAmount(3), flipped, kndx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Uint64() != 6000 {
		t.Errorf("token1 side: got %d, want 6000", got.Uint64())
	}

	empty := chain.Reserves{Reserve0: types.NewAmount(5), Reserve1: types.Zero(), Token0: kndx}
	if _, err := Quote(types.NewAmount(3), empty, kndx); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("empty pool: got %v, want ErrOracleUnavailable", err)
	}
}

func TestEvaluate(t *testing.T) {
	withRoyalty := func() *Token {
		tok := NewToken(1, alice)
		tok.RoyaltyWei = uint256.NewInt(10)
		return tok
	}
	noPass := func(common.Address) (bool, error) { return false, nil }
	bobHolds := func(a common.Address) (bool, error) { return a == bob, nil }

	tests := []struct {
		name   string
		mutate func(*Config, *Token)
		from   common.Address
		holds  PassCheck
		want   Exemption
	}{
		{"enforcement off", func(c *Config, _ *Token) { c.EnforcementEnabled = false }, alice, noPass, ExemptEnforcementDisabled},
		{"minted owner", nil, alice, noPass, ExemptMintedOwner},
		{"minted owner rule off", func(c *Config, _ *Token) { c.MintedOwnerExemptEnabled = false }, alice, noPass, ExemptNone},
		{"minted owner consumed", func(_ *Config, tok *Token) { tok.MintedOwner = common.Address{} }, alice, noPass, ExemptNone},
		{"recipient holds pass", func(_ *Config, tok *Token) { tok.MintedOwner = common.Address{} }, alice, bobHolds, ExemptFounderPass},
		{"pass rule off", func(c *Config, tok *Token) {
			c.FounderPassExemptEnabled = false
			tok.MintedOwner = common.Address{}
		}, alice, bobHolds, ExemptNone},
		{"no royalty", func(_ *Config, tok *Token) { tok.RoyaltyWei = types.Zero() }, bob, noPass, ExemptNoRoyalty},
		{"charged", nil, bob, noPass, ExemptNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := splitConfig()
			cfg.FounderPass = common.HexToAddress("0xf0")
			tok := withRoyalty()
			if tt.mutate != nil {
				tt.mutate(cfg, tok)
			}
			to := bob
			if tt.from == bob {
				to = alice
			}
			got, err := Evaluate(cfg, tok, tt.from, to, tt.holds)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluatePropagatesLookupError(t *testing.T) {
	cfg := splitConfig()
	cfg.FounderPass = common.HexToAddress("0xf0")
	tok := NewToken(1, alice)
	tok.MintedOwner = common.Address{}
	boom := errors.New("rpc down")

	_, err := Evaluate(cfg, tok, alice, bob, func(common.Address) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}
