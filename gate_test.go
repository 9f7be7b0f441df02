package tierpay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tierpay"
	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/erc20"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/nft"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store/memory"
	"github.com/xraph/tierpay/types"
)

var (
	gateAddr    = common.HexToAddress("0x6a7e")
	artAddr     = common.HexToAddress("0xa27")
	passAddr    = common.HexToAddress("0xf9")
	pairAddr    = common.HexToAddress("0x9a1")
	weth        = common.HexToAddress("0xe7")
	treasuryFee = common.HexToAddress("0x7f")
	partner     = common.HexToAddress("0x9a")
	creator     = common.HexToAddress("0xc1")
	buyer       = common.HexToAddress("0xb1")
)

// units parses a decimal amount with 18 decimals.
func units(s string) *uint256.Int { return types.MustParseUnits(s, 18) }

type gateEnv struct {
	ctx    context.Context
	g      *tierpay.Gate
	tokens *erc20.Ledger
	pairs  *chain.MemoryPairs
	art    *nft.Collection
	pass   *nft.Collection
	hook   tokenHook
}

// newGateEnv wires a gate over an 18-decimal settlement token priced at
// 2000 per ETH, mints token 1 to creator and prices it at 0.001 ETH.
func newGateEnv(t *testing.T, wrap func(chain.Tokens) chain.Tokens) *gateEnv {
	t.Helper()
	ctx := context.Background()
	env := &gateEnv{
		ctx:   ctx,
		pairs: chain.NewMemoryPairs(),
		pass:  nft.NewCollection(passAddr, nil),
	}
	env.tokens = erc20.New(
		erc20.WithLogger(discardLogger()),
		erc20.WithHook(func(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
			if env.hook != nil {
				return env.hook(ctx, token, from, to, amount)
			}
			return nil
		}),
	)
	var tokens chain.Tokens = env.tokens
	if wrap != nil {
		tokens = wrap(tokens)
	}

	env.pairs.Set(pairAddr, chain.Reserves{
		Reserve0: units("2000000"),
		Reserve1: units("1000"),
		Token0:   kndx,
	})

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	env.g = tierpay.NewGate(memory.New(),
		tierpay.WithLogger(discardLogger()),
		tierpay.WithClock(clock.Now),
		tierpay.WithAddress(gateAddr),
		tierpay.WithTokens(tokens),
		tierpay.WithAuthority(auth.NewMemory(admin)),
		tierpay.WithHoldings(nft.NewRegistry(env.pass)),
		tierpay.WithPriceOracle(env.pairs),
	)
	require.NoError(t, env.g.Start(ctx))

	require.NoError(t, env.g.SetSettlementToken(ctx, admin, kndx))
	require.NoError(t, env.g.SetPair(ctx, admin, pairAddr))
	require.NoError(t, env.g.SetTreasury(ctx, admin, treasuryFee))
	require.NoError(t, env.g.SetPartnerWallet(ctx, admin, partner))
	require.NoError(t, env.g.SetFounderPass(ctx, admin, passAddr))

	env.art = nft.NewCollection(artAddr, env.g)
	tokenID, err := env.art.Mint(ctx, creator)
	require.NoError(t, err)
	require.Equal(t, uint64(1), tokenID)
	require.NoError(t, env.g.SetRoyaltyWei(ctx, creator, 1, units("0.001")))

	for _, holder := range []common.Address{creator, buyer} {
		require.NoError(t, env.tokens.Mint(ctx, kndx, holder, units("10")))
		require.NoError(t, env.tokens.Approve(ctx, kndx, holder, gateAddr, units("10")))
	}
	return env
}

func (env *gateEnv) balance(t *testing.T, holder common.Address) *uint256.Int {
	t.Helper()
	b, err := env.tokens.BalanceOf(env.ctx, kndx, holder)
	require.NoError(t, err)
	return b
}

func (env *gateEnv) transfer(from, to common.Address) error {
	return env.art.Transfer(env.ctx, from, from, to, 1)
}

func (env *gateEnv) owner(t *testing.T) common.Address {
	t.Helper()
	o, err := env.art.OwnerOf(env.ctx, 1)
	require.NoError(t, err)
	return o
}

func TestMintRecordsRoyaltyOwner(t *testing.T) {
	env := newGateEnv(t, nil)

	tok, err := env.g.Token(env.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, creator, tok.RoyaltyOwner)
	assert.Equal(t, creator, tok.MintedOwner)
	assert.Equal(t, units("0.001"), tok.RoyaltyWei)

	cfg, err := env.g.Config(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), cfg.ManufacturerBP)
	assert.True(t, cfg.EnforcementEnabled)
}

func TestMintedOwnerExemptionRoundTrip(t *testing.T) {
	env := newGateEnv(t, nil)

	// The minted owner moves the token once for free.
	require.NoError(t, env.transfer(creator, buyer))
	assert.Equal(t, units("10"), env.balance(t, creator))
	tok, _ := env.g.Token(env.ctx, 1)
	assert.Equal(t, common.Address{}, tok.MintedOwner)

	// Coming back costs 0.001 ETH at 2000 per ETH, split 40/30/30.
	require.NoError(t, env.transfer(buyer, creator))
	assert.Equal(t, units("8"), env.balance(t, buyer))
	assert.Equal(t, units("0.8"), env.balance(t, treasuryFee))
	assert.Equal(t, units("0.6"), env.balance(t, partner))
	assert.Equal(t, units("10.6"), env.balance(t, creator))
	assert.True(t, env.balance(t, gateAddr).IsZero())
	assert.Equal(t, creator, env.owner(t))

	// The exemption does not come back.
	require.NoError(t, env.transfer(creator, buyer))
	assert.Equal(t, units("9.2"), env.balance(t, creator))

	exempted, err := env.g.Events(env.ctx, event.ListOpts{Kind: event.KindRoyaltyExempted, TokenID: 1})
	require.NoError(t, err)
	require.Len(t, exempted, 2)
	assert.Equal(t, string(royalty.ExemptMintedOwner), exempted[0].Attributes["exemption"])
	assert.Equal(t, string(royalty.ExemptMint), exempted[1].Attributes["exemption"])

	charged, err := env.g.Events(env.ctx, event.ListOpts{Kind: event.KindRoyaltyCharged})
	require.NoError(t, err)
	assert.Len(t, charged, 2)
}

func TestShareRedirection(t *testing.T) {
	tests := []struct {
		name      string
		configure func(env *gateEnv) error
		treasury  string
		partner   string
		creator   string
	}{
		{
			name:      "no partner wallet",
			configure: func(env *gateEnv) error { return env.g.SetPartnerWallet(env.ctx, admin, common.Address{}) },
			treasury:  "0.8", partner: "0", creator: "1.2",
		},
		{
			name:      "treasury fee off",
			configure: func(env *gateEnv) error { return env.g.SetTreasuryFeeEnabled(env.ctx, admin, false) },
			treasury:  "0", partner: "0.6", creator: "1.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newGateEnv(t, nil)
			require.NoError(t, tt.configure(env))
			require.NoError(t, env.g.SetMintedOwnerExempt(env.ctx, admin, false))

			c, err := env.g.Charge(env.ctx, creator, buyer, 1)
			require.NoError(t, err)
			assert.False(t, c.Exempt())
			assert.Equal(t, units("2"), c.Required)

			assert.Equal(t, units(tt.treasury), env.balance(t, treasuryFee))
			assert.Equal(t, units(tt.partner), env.balance(t, partner))
			// The creator paid 2 and received its share.
			assert.Equal(t, units("8").Add(units("8"), units(tt.creator)), env.balance(t, creator))
		})
	}
}

func TestExemptions(t *testing.T) {
	t.Run("founder pass", func(t *testing.T) {
		env := newGateEnv(t, nil)
		require.NoError(t, env.transfer(creator, buyer))
		_, err := env.pass.Mint(env.ctx, buyer)
		require.NoError(t, err)

		c, err := env.g.Charge(env.ctx, buyer, creator, 1)
		require.NoError(t, err)
		assert.Equal(t, royalty.ExemptFounderPass, c.Exemption)

		require.NoError(t, env.g.SetFounderPassExempt(env.ctx, admin, false))
		c, err = env.g.Charge(env.ctx, buyer, creator, 1)
		require.NoError(t, err)
		assert.False(t, c.Exempt())
	})

	t.Run("enforcement disabled", func(t *testing.T) {
		env := newGateEnv(t, nil)
		require.NoError(t, env.g.SetRoyaltyEnforcement(env.ctx, admin, false))
		require.NoError(t, env.g.SetMintedOwnerExempt(env.ctx, admin, false))

		c, err := env.g.Charge(env.ctx, creator, buyer, 1)
		require.NoError(t, err)
		assert.Equal(t, royalty.ExemptEnforcementDisabled, c.Exemption)
		assert.Equal(t, units("10"), env.balance(t, creator))
	})

	t.Run("zero royalty", func(t *testing.T) {
		env := newGateEnv(t, nil)
		require.NoError(t, env.g.SetRoyaltyWei(env.ctx, creator, 1, types.Zero()))
		require.NoError(t, env.g.SetMintedOwnerExempt(env.ctx, admin, false))

		c, err := env.g.Charge(env.ctx, creator, buyer, 1)
		require.NoError(t, err)
		assert.Equal(t, royalty.ExemptNoRoyalty, c.Exemption)
	})
}

func TestChargeFailuresBlockTransfer(t *testing.T) {
	env := newGateEnv(t, nil)
	require.NoError(t, env.transfer(creator, buyer))

	require.NoError(t, env.tokens.Approve(env.ctx, kndx, buyer, gateAddr, units("1")))
	err := env.transfer(buyer, creator)
	require.ErrorIs(t, err, tierpay.ErrInsufficientAllowance)
	assert.Equal(t, buyer, env.owner(t))

	require.NoError(t, env.tokens.Approve(env.ctx, kndx, buyer, gateAddr, units("100")))
	require.NoError(t, env.tokens.Transfer(env.ctx, kndx, buyer, stranger, units("9")))
	err = env.transfer(buyer, creator)
	require.ErrorIs(t, err, tierpay.ErrInsufficientBalance)
	assert.Equal(t, buyer, env.owner(t))

	env.pairs.Set(pairAddr, chain.Reserves{Reserve0: types.Zero(), Reserve1: units("1"), Token0: kndx})
	assert.ErrorIs(t, env.transfer(buyer, creator), tierpay.ErrOracleUnavailable)
}

func TestSplitConfiguration(t *testing.T) {
	env := newGateEnv(t, nil)
	require.NoError(t, env.g.SetMintedOwnerExempt(env.ctx, admin, false))

	assert.ErrorIs(t, env.g.SetRoyaltySplits(env.ctx, stranger, 5000, 2500, 2500), tierpay.ErrUnauthorized)
	assert.ErrorIs(t, env.g.SetRoyaltySplits(env.ctx, admin, 5000, 3000, 3000), tierpay.ErrSplitsMustSumToDenominator)
	cfg, _ := env.g.Config(env.ctx)
	assert.Equal(t, uint64(4000), cfg.ManufacturerBP)

	require.NoError(t, env.g.SetRoyaltySplits(env.ctx, admin, 5000, 2500, 2500))
	cfg, _ = env.g.Config(env.ctx)
	assert.Equal(t, []uint64{5000, 2500, 2500}, []uint64{cfg.ManufacturerBP, cfg.PartnerBP, cfg.CreatorBP})

	assert.ErrorIs(t, env.g.ChangeDenominator(env.ctx, admin, 0), tierpay.ErrInvalidInput)
	require.NoError(t, env.g.ChangeDenominator(env.ctx, admin, 1000))

	// Splits that no longer match the denominator block charging.
	_, err := env.g.Charge(env.ctx, creator, buyer, 1)
	require.ErrorIs(t, err, tierpay.ErrSplitsMustSumToDenominator)

	require.NoError(t, env.g.SetRoyaltySplits(env.ctx, admin, 400, 300, 300))
	q, err := env.g.Quote(env.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, units("0.8"), q.Shares.Manufacturer)
}

func TestRoyaltyOwnership(t *testing.T) {
	env := newGateEnv(t, nil)
	heir := common.HexToAddress("0x4e")

	assert.ErrorIs(t, env.g.SetRoyaltyWei(env.ctx, stranger, 1, units("1")), tierpay.ErrUnauthorized)
	assert.ErrorIs(t, env.g.SetRoyaltyOwner(env.ctx, stranger, 1, heir), tierpay.ErrUnauthorized)
	assert.ErrorIs(t, env.g.SetRoyaltyOwner(env.ctx, admin, 1, common.Address{}), tierpay.ErrInvalidRoyaltyOwner)
	assert.True(t, tierpay.IsNotFound(env.g.SetRoyaltyWei(env.ctx, creator, 99, units("1"))))

	require.NoError(t, env.g.SetRoyaltyOwner(env.ctx, admin, 1, heir))
	assert.ErrorIs(t, env.g.SetRoyaltyWei(env.ctx, creator, 1, units("1")), tierpay.ErrUnauthorized)
	require.NoError(t, env.g.SetRoyaltyWei(env.ctx, heir, 1, units("0.002")))
	require.NoError(t, env.g.SetRoyaltyOwner(env.ctx, heir, 1, creator))

	q, err := env.g.Quote(env.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, units("4"), q.Required)
	assert.Equal(t, creator, q.Shares.CreatorWallet)
}

// sequentialTokens hides TransferBatch and fails payments to one recipient.
type sequentialTokens struct {
	chain.Tokens
	failTo common.Address
}

func (s sequentialTokens) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if to == s.failTo {
		return errors.New("recipient rejects tokens")
	}
	return s.Tokens.Transfer(ctx, token, from, to, amount)
}

func TestSettlementWithoutBatchLeavesBalances(t *testing.T) {
	env := newGateEnv(t, func(tokens chain.Tokens) chain.Tokens {
		return sequentialTokens{Tokens: tokens, failTo: partner}
	})
	require.NoError(t, env.transfer(creator, buyer))

	err := env.transfer(buyer, creator)
	require.ErrorIs(t, err, tierpay.ErrNotConfigured)

	assert.Equal(t, units("10"), env.balance(t, buyer))
	assert.True(t, env.balance(t, treasuryFee).IsZero())
	assert.True(t, env.balance(t, partner).IsZero())
	assert.True(t, env.balance(t, gateAddr).IsZero())
	assert.Equal(t, buyer, env.owner(t))
}

func TestBatchSettlementIsAtomic(t *testing.T) {
	env := newGateEnv(t, nil)
	require.NoError(t, env.transfer(creator, buyer))
	env.hook = func(_ context.Context, _, _, to common.Address, _ *uint256.Int) error {
		if to == partner {
			return errors.New("recipient rejects tokens")
		}
		return nil
	}

	err := env.transfer(buyer, creator)
	require.ErrorIs(t, err, tierpay.ErrSettlementFailed)
	assert.Equal(t, units("10"), env.balance(t, buyer))
	assert.True(t, env.balance(t, treasuryFee).IsZero())
	assert.True(t, env.balance(t, gateAddr).IsZero())
}

func TestPanicDuringChargeReleasesLock(t *testing.T) {
	env := newGateEnv(t, nil)
	require.NoError(t, env.transfer(creator, buyer))
	env.hook = func(_ context.Context, _, _, to common.Address, _ *uint256.Int) error {
		if to == partner {
			panic("token callback failed")
		}
		return nil
	}

	assert.PanicsWithValue(t, "token callback failed", func() { _ = env.transfer(buyer, creator) })
	env.hook = nil

	// The escrow pull was undone before the panic left the gate.
	assert.Equal(t, units("10"), env.balance(t, buyer))
	assert.True(t, env.balance(t, gateAddr).IsZero())
	assert.Equal(t, buyer, env.owner(t))

	done := make(chan error, 1)
	go func() { done <- env.g.SetRoyaltyEnforcement(env.ctx, admin, true) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("gate still locked after a panicking call")
	}
	require.NoError(t, env.transfer(buyer, creator))
}

func TestReentrantChargeIsRejected(t *testing.T) {
	env := newGateEnv(t, nil)
	require.NoError(t, env.transfer(creator, buyer))

	var inner error
	env.hook = func(ctx context.Context, _, from, to common.Address, _ *uint256.Int) error {
		if from == buyer && to == gateAddr {
			_, inner = env.g.Charge(ctx, buyer, creator, 1)
			return inner
		}
		return nil
	}

	err := env.transfer(buyer, creator)
	require.ErrorIs(t, inner, tierpay.ErrReentrantCall)
	require.ErrorIs(t, err, tierpay.ErrReentrantCall)
	assert.Equal(t, units("10"), env.balance(t, buyer))
	assert.Equal(t, buyer, env.owner(t))
}

func TestEventsScopedToEngineOnSharedStore(t *testing.T) {
	ctx := context.Background()
	shared := memory.New()
	authority := auth.NewMemory(admin)
	authority.Grant(auth.RoleGovernor, admin)

	l := tierpay.New(shared, tierpay.WithLogger(discardLogger()), tierpay.WithAuthority(authority))
	g := tierpay.NewGate(shared, tierpay.WithLogger(discardLogger()), tierpay.WithAuthority(authority))
	require.NoError(t, l.Start(ctx))
	require.NoError(t, g.Start(ctx))

	require.NoError(t, l.SetSettlementToken(ctx, admin, kndx))
	require.NoError(t, g.SetRoyaltyEnforcement(ctx, admin, false))

	ledgerEvents, err := l.Events(ctx, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, ledgerEvents, 1)
	assert.Equal(t, event.KindConfigChanged, ledgerEvents[0].Kind)

	gateEvents, err := g.Events(ctx, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, gateEvents, 1)
	assert.Equal(t, event.KindRoyaltyConfigChanged, gateEvents[0].Kind)

	foreign, err := l.Events(ctx, event.ListOpts{Kind: event.KindRoyaltyConfigChanged})
	require.NoError(t, err)
	assert.Empty(t, foreign)
}
