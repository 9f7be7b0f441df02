package tierpay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/id"
	"github.com/xraph/tierpay/nft"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/types"
)

// Gate charges a royalty in the settlement token on every NFT transfer and
// splits it between the treasury, a partner and the token's creator.
type Gate struct {
	core

	address   common.Address
	tokens    chain.Tokens
	authority auth.Authority
	holdings  chain.Holdings
	prices    chain.PriceOracle
	defaults  royalty.Config
}

var _ nft.TransferHook = (*Gate)(nil)

// NewGate creates a new Gate instance.
func NewGate(s store.Store, opts ...Option) *Gate {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Gate{
		core: core{
			name:    "gate",
			store:   s,
			plugins: o.registry(),
			logger:  o.logger,
			clock:   o.clock,
		},
		address:   o.address,
		tokens:    o.tokens,
		authority: o.authority,
		holdings:  o.holdings,
		prices:    o.prices,
		defaults:  o.royaltyDefaults,
	}
}

// Start migrates the store, seeds the gate configuration on first run and
// initializes plugins.
func (g *Gate) Start(ctx context.Context) error {
	if err := g.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if _, err := g.store.GetRoyaltyConfig(ctx); err != nil {
		if !IsNotFound(err) {
			return err
		}
		cfg := g.defaults
		cfg.Touch(g.now())
		if err := g.store.SaveRoyaltyConfig(ctx, &cfg); err != nil {
			return err
		}
	}

	g.plugins.EmitInit(ctx, g)

	g.logger.Info("royalty gate started",
		"address", g.address.Hex(),
		"plugins", g.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins. The store is owned by the caller.
func (g *Gate) Stop(ctx context.Context) error {
	g.plugins.EmitShutdown(ctx)
	g.logger.Info("royalty gate stopped")
	return nil
}

// Address is the gate's escrow account on the token ledger. Senders approve
// it for the royalty before transferring.
func (g *Gate) Address() common.Address { return g.address }

// ──────────────────────────────────────────────────
// Transfer hook
// ──────────────────────────────────────────────────

// BeforeTransfer implements nft.TransferHook.
func (g *Gate) BeforeTransfer(ctx context.Context, from, to common.Address, tokenID uint64) error {
	_, err := g.Charge(ctx, from, to, tokenID)
	return err
}

// Charge records mints, applies the exemption rules and otherwise collects
// and distributes the royalty for moving tokenID from from to to.
func (g *Gate) Charge(ctx context.Context, from, to common.Address, tokenID uint64) (*royalty.Charge, error) {
	var charge *royalty.Charge
	err := g.mutate(ctx, "charge", func(ctx context.Context, tx *txn) error {
		charge = &royalty.Charge{
			ID:       id.NewChargeID(),
			TokenID:  tokenID,
			From:     from,
			To:       to,
			Required: types.Zero(),
		}

		if from == (common.Address{}) {
			if err := g.recordMint(ctx, tokenID, to); err != nil {
				return err
			}
			charge.Exemption = royalty.ExemptMint
			tx.emit(g.chargeEvent(event.KindRoyaltyExempted, charge))
			return nil
		}

		cfg, err := g.config(ctx)
		if err != nil {
			return err
		}
		tok, err := g.loadToken(ctx, tokenID)
		if err != nil {
			return err
		}

		exemption, err := royalty.Evaluate(cfg, tok, from, to, g.passCheck(ctx, cfg))
		if err != nil {
			return fmt.Errorf("tierpay: founder pass lookup: %w", err)
		}
		if exemption != royalty.ExemptNone {
			if exemption == royalty.ExemptMintedOwner {
				prev := tok.Clone()
				tok.MintedOwner = common.Address{}
				if err := g.saveToken(ctx, tx, prev, tok); err != nil {
					return err
				}
			}
			charge.Exemption = exemption
			tx.emit(g.chargeEvent(event.KindRoyaltyExempted, charge))
			return nil
		}

		required, shares, err := g.price(ctx, cfg, tok)
		if err != nil {
			return err
		}
		if required.IsZero() {
			charge.Exemption = royalty.ExemptNoRoyalty
			tx.emit(g.chargeEvent(event.KindRoyaltyExempted, charge))
			return nil
		}

		if err := g.settle(ctx, tx, cfg.SettlementToken, from, required, shares); err != nil {
			return err
		}

		charge.Required = required
		charge.Shares = shares
		tx.emit(g.chargeEvent(event.KindRoyaltyCharged, charge))

		g.logger.Debug("royalty charged",
			"token_id", tokenID,
			"from", from.Hex(),
			"required", required.Dec(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// price checks the configuration and converts the token's royalty into
// settlement-token units split across the recipients.
func (g *Gate) price(ctx context.Context, cfg *royalty.Config, tok *royalty.Token) (*uint256.Int, royalty.Shares, error) {
	if cfg.Denominator == 0 || !cfg.SplitsBalanced() {
		return nil, royalty.Shares{}, ErrSplitsMustSumToDenominator
	}
	if tok.RoyaltyOwner == (common.Address{}) {
		return nil, royalty.Shares{}, fmt.Errorf("%w: token %d has none", ErrInvalidRoyaltyOwner, tok.TokenID)
	}
	switch {
	case cfg.SettlementToken == (common.Address{}):
		return nil, royalty.Shares{}, fmt.Errorf("%w: settlement token", ErrNotConfigured)
	case cfg.Pair == (common.Address{}) || g.prices == nil:
		return nil, royalty.Shares{}, fmt.Errorf("%w: price oracle", ErrNotConfigured)
	case cfg.TreasuryFeeEnabled && cfg.Treasury == (common.Address{}):
		return nil, royalty.Shares{}, fmt.Errorf("%w: treasury", ErrNotConfigured)
	}

	reserves, err := g.prices.GetReserves(ctx, cfg.Pair)
	if err != nil {
		return nil, royalty.Shares{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	required, err := royalty.Quote(tok.RoyaltyWei, reserves, cfg.SettlementToken)
	if err != nil {
		return nil, royalty.Shares{}, err
	}

	shares, err := royalty.Split(required, cfg, tok.RoyaltyOwner)
	if err != nil {
		return nil, royalty.Shares{}, err
	}
	return required, shares, nil
}

// settle pulls required from the sender into escrow and pays the legs out
// in one batch. Token ledgers that cannot pay a batch atomically are refused
// before anything moves.
func (g *Gate) settle(ctx context.Context, tx *txn, token, from common.Address, required *uint256.Int, shares royalty.Shares) error {
	if g.tokens == nil {
		return fmt.Errorf("%w: token ledger", ErrNotConfigured)
	}
	batch, ok := g.tokens.(chain.BatchTransferer)
	if !ok {
		return fmt.Errorf("%w: token ledger without atomic batch transfers", ErrNotConfigured)
	}

	allowance, err := g.tokens.Allowance(ctx, token, from, g.address)
	if err != nil {
		return err
	}
	if allowance.Lt(required) {
		return fmt.Errorf("%w: %s approved, %s required", ErrInsufficientAllowance, allowance.Dec(), required.Dec())
	}
	balance, err := g.tokens.BalanceOf(ctx, token, from)
	if err != nil {
		return err
	}
	if balance.Lt(required) {
		return fmt.Errorf("%w: %s held, %s required", ErrInsufficientBalance, balance.Dec(), required.Dec())
	}

	if err := g.tokens.TransferFrom(ctx, token, g.address, from, g.address, required); err != nil {
		return fmt.Errorf("%w: escrow: %w", ErrSettlementFailed, err)
	}
	tx.onRollback(func(ctx context.Context) error {
		return g.tokens.Transfer(ctx, token, g.address, from, required)
	})

	if err := batch.TransferBatch(ctx, token, g.address, shares.Legs()); err != nil {
		return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}
	return nil
}

func (g *Gate) recordMint(ctx context.Context, tokenID uint64, to common.Address) error {
	_, err := g.store.GetRoyaltyToken(ctx, tokenID)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return err
	}
	tok := royalty.NewToken(tokenID, to)
	tok.Touch(g.now())
	return g.store.SaveRoyaltyToken(ctx, tok)
}

func (g *Gate) passCheck(ctx context.Context, cfg *royalty.Config) royalty.PassCheck {
	return func(holder common.Address) (bool, error) {
		return chain.HoldsAny(ctx, g.holdings, holder, cfg.FounderPass)
	}
}

func (g *Gate) chargeEvent(kind event.Kind, c *royalty.Charge) *event.Event {
	e := event.New(kind, c.From, g.now())
	e.Counterparty = c.To
	e.TokenID = c.TokenID
	e.Amount = types.Clone(c.Required)
	e.With("charge_id", c.ID.String())
	if c.Exempt() {
		e.With("exemption", string(c.Exemption))
		return e
	}
	e.With("manufacturer", c.Shares.Manufacturer.Dec()).
		With("partner", c.Shares.Partner.Dec()).
		With("creator", c.Shares.Creator.Dec())
	return e
}

// ──────────────────────────────────────────────────
// Per-token royalty
// ──────────────────────────────────────────────────

// SetRoyaltyOwner hands the creator role for tokenID to owner. The admin or
// the current royalty owner may call it.
func (g *Gate) SetRoyaltyOwner(ctx context.Context, caller common.Address, tokenID uint64, owner common.Address) error {
	if owner == (common.Address{}) {
		return ErrInvalidRoyaltyOwner
	}

	return g.mutate(ctx, "set_royalty_owner", func(ctx context.Context, tx *txn) error {
		tok, err := g.store.GetRoyaltyToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if caller != tok.RoyaltyOwner {
			if err := auth.Require(ctx, g.authority, auth.RoleAdmin, caller, ErrUnauthorized); err != nil {
				return fmt.Errorf("%w: %s is neither admin nor royalty owner", err, caller.Hex())
			}
		}

		prev := tok.Clone()
		tok.RoyaltyOwner = owner
		if err := g.saveToken(ctx, tx, prev, tok); err != nil {
			return err
		}

		e := event.New(event.KindRoyaltyOwnerChanged, owner, g.now())
		e.Counterparty = prev.RoyaltyOwner
		e.TokenID = tokenID
		tx.emit(e)
		return nil
	})
}

// SetRoyaltyWei sets the royalty for tokenID, in the pool's quote asset.
// Only the current royalty owner may call it; zero waives the fee.
func (g *Gate) SetRoyaltyWei(ctx context.Context, caller common.Address, tokenID uint64, wei *uint256.Int) error {
	wei = types.Clone(wei)

	return g.mutate(ctx, "set_royalty_wei", func(ctx context.Context, tx *txn) error {
		tok, err := g.store.GetRoyaltyToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if caller != tok.RoyaltyOwner {
			return fmt.Errorf("%w: %s is not the royalty owner of token %d", ErrUnauthorized, caller.Hex(), tokenID)
		}

		prev := tok.Clone()
		tok.RoyaltyWei = wei
		if err := g.saveToken(ctx, tx, prev, tok); err != nil {
			return err
		}

		e := event.New(event.KindRoyaltyPriceChanged, caller, g.now())
		e.TokenID = tokenID
		e.Amount = types.Clone(wei)
		tx.emit(e)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Administration
// ──────────────────────────────────────────────────

// SetRoyaltySplits sets the three cuts. They must sum to the current
// denominator.
func (g *Gate) SetRoyaltySplits(ctx context.Context, caller common.Address, manufacturerBP, partnerBP, creatorBP uint64) error {
	value := fmt.Sprintf("%d/%d/%d", manufacturerBP, partnerBP, creatorBP)
	return g.configure(ctx, caller, "splits", value, func(cfg *royalty.Config) error {
		sum := manufacturerBP + partnerBP + creatorBP
		if sum < manufacturerBP || sum != cfg.Denominator {
			return fmt.Errorf("%w: %s of %d", ErrSplitsMustSumToDenominator, value, cfg.Denominator)
		}
		cfg.ManufacturerBP = manufacturerBP
		cfg.PartnerBP = partnerBP
		cfg.CreatorBP = creatorBP
		return nil
	})
}

// ChangeDenominator sets the split denominator. Splits that no longer sum to
// it block charging until they are reset.
func (g *Gate) ChangeDenominator(ctx context.Context, caller common.Address, denominator uint64) error {
	if denominator == 0 {
		return ValidationError{Field: "denominator", Message: "must be positive"}
	}
	return g.configure(ctx, caller, "denominator", strconv.FormatUint(denominator, 10), func(cfg *royalty.Config) error {
		cfg.Denominator = denominator
		return nil
	})
}

// SetPartnerWallet sets the partner recipient. The zero address sends the
// partner cut to the creator.
func (g *Gate) SetPartnerWallet(ctx context.Context, caller, wallet common.Address) error {
	return g.configure(ctx, caller, "partner_wallet", wallet.Hex(), func(cfg *royalty.Config) error {
		cfg.PartnerWallet = wallet
		return nil
	})
}

// SetTreasuryFeeEnabled toggles the manufacturer cut.
func (g *Gate) SetTreasuryFeeEnabled(ctx context.Context, caller common.Address, enabled bool) error {
	return g.configure(ctx, caller, "treasury_fee_enabled", strconv.FormatBool(enabled), func(cfg *royalty.Config) error {
		cfg.TreasuryFeeEnabled = enabled
		return nil
	})
}

// SetFounderPassExempt toggles the founder-pass exemption.
func (g *Gate) SetFounderPassExempt(ctx context.Context, caller common.Address, enabled bool) error {
	return g.configure(ctx, caller, "founder_pass_exempt", strconv.FormatBool(enabled), func(cfg *royalty.Config) error {
		cfg.FounderPassExemptEnabled = enabled
		return nil
	})
}

// SetMintedOwnerExempt toggles the minted-owner exemption.
func (g *Gate) SetMintedOwnerExempt(ctx context.Context, caller common.Address, enabled bool) error {
	return g.configure(ctx, caller, "minted_owner_exempt", strconv.FormatBool(enabled), func(cfg *royalty.Config) error {
		cfg.MintedOwnerExemptEnabled = enabled
		return nil
	})
}

// SetRoyaltyEnforcement turns charging on or off.
func (g *Gate) SetRoyaltyEnforcement(ctx context.Context, caller common.Address, enabled bool) error {
	return g.configure(ctx, caller, "enforcement", strconv.FormatBool(enabled), func(cfg *royalty.Config) error {
		cfg.EnforcementEnabled = enabled
		return nil
	})
}

// SetTreasury sets the manufacturer recipient.
func (g *Gate) SetTreasury(ctx context.Context, caller, treasury common.Address) error {
	return g.configure(ctx, caller, "treasury", treasury.Hex(), func(cfg *royalty.Config) error {
		cfg.Treasury = treasury
		return nil
	})
}

// SetSettlementToken sets the token royalties are paid in.
func (g *Gate) SetSettlementToken(ctx context.Context, caller, token common.Address) error {
	return g.configure(ctx, caller, "settlement_token", token.Hex(), func(cfg *royalty.Config) error {
		cfg.SettlementToken = token
		return nil
	})
}

// SetPair sets the pool used to price royalties.
func (g *Gate) SetPair(ctx context.Context, caller, pair common.Address) error {
	return g.configure(ctx, caller, "pair", pair.Hex(), func(cfg *royalty.Config) error {
		cfg.Pair = pair
		return nil
	})
}

// SetFounderPass sets the collection whose holders transfer without a fee.
func (g *Gate) SetFounderPass(ctx context.Context, caller, collection common.Address) error {
	return g.configure(ctx, caller, "founder_pass", collection.Hex(), func(cfg *royalty.Config) error {
		cfg.FounderPass = collection
		return nil
	})
}

func (g *Gate) configure(ctx context.Context, caller common.Address, key, value string, apply func(*royalty.Config) error) error {
	return g.mutate(ctx, "set_"+key, func(ctx context.Context, tx *txn) error {
		if err := auth.Require(ctx, g.authority, auth.RoleAdmin, caller, ErrUnauthorized); err != nil {
			return fmt.Errorf("%w: %s is not an admin", err, caller.Hex())
		}
		cfg, err := g.config(ctx)
		if err != nil {
			return err
		}
		prev := cfg.Clone()
		if err := apply(cfg); err != nil {
			return err
		}
		cfg.Touch(g.now())
		if err := persist(ctx, tx, g.store.SaveRoyaltyConfig, prev, cfg); err != nil {
			return err
		}

		e := event.New(event.KindRoyaltyConfigChanged, caller, g.now())
		e.With("key", key).With("value", value)
		tx.emit(e)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Views
// ──────────────────────────────────────────────────

// Token returns the royalty record of tokenID.
func (g *Gate) Token(ctx context.Context, tokenID uint64) (*royalty.Token, error) {
	return g.store.GetRoyaltyToken(ctx, tokenID)
}

// Config returns the gate configuration.
func (g *Gate) Config(ctx context.Context) (*royalty.Config, error) {
	return g.config(ctx)
}

// Quote prices a transfer of tokenID without exemptions or side effects.
func (g *Gate) Quote(ctx context.Context, tokenID uint64) (*royalty.Charge, error) {
	cfg, err := g.config(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := g.store.GetRoyaltyToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	c := &royalty.Charge{TokenID: tokenID, Required: types.Zero()}
	if types.IsZero(tok.RoyaltyWei) {
		c.Exemption = royalty.ExemptNoRoyalty
		return c, nil
	}
	required, shares, err := g.price(ctx, cfg, tok)
	if err != nil {
		return nil, err
	}
	c.Required = required
	c.Shares = shares
	return c, nil
}

// Events lists the gate's journal entries, newest first. Entries written
// by a ledger sharing the store are left out.
func (g *Gate) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	scoped, ok := opts.Scope(event.GateKinds())
	if !ok {
		return []*event.Event{}, nil
	}
	return g.store.ListEvents(ctx, scoped)
}

func (g *Gate) config(ctx context.Context) (*royalty.Config, error) {
	cfg, err := g.store.GetRoyaltyConfig(ctx)
	if IsNotFound(err) {
		c := g.defaults
		return &c, nil
	}
	return cfg, err
}

func (g *Gate) loadToken(ctx context.Context, tokenID uint64) (*royalty.Token, error) {
	tok, err := g.store.GetRoyaltyToken(ctx, tokenID)
	if IsNotFound(err) {
		return &royalty.Token{TokenID: tokenID, RoyaltyWei: types.Zero()}, nil
	}
	return tok, err
}

func (g *Gate) saveToken(ctx context.Context, tx *txn, prev, next *royalty.Token) error {
	next.Touch(g.now())
	return persist(ctx, tx, g.store.SaveRoyaltyToken, prev, next)
}
