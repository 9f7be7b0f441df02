package tierpay

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/types"
)

// Ledger is the tiered usage-billing engine. Users prepay into the reserve,
// registered providers are credited per unit of usage, and the platform
// keeps a royalty on every charge.
type Ledger struct {
	core

	address     common.Address
	tokens      chain.Tokens
	reserve     chain.Reserve
	authority   auth.Authority
	usageOracle chain.UsageOracle
	holdings    chain.Holdings
	defaults    platform.Config
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Ledger{
		core: core{
			name:    "ledger",
			store:   s,
			plugins: o.registry(),
			logger:  o.logger,
			clock:   o.clock,
		},
		address:     o.address,
		tokens:      o.tokens,
		reserve:     o.reserve,
		authority:   o.authority,
		usageOracle: o.usageOracle,
		holdings:    o.holdings,
		defaults:    o.platformDefaults,
	}
}

// Start migrates the store, seeds the platform configuration on first run
// and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if _, err := l.store.GetPlatform(ctx); err != nil {
		if !IsNotFound(err) {
			return err
		}
		st := platform.NewState(l.defaults)
		st.Touch(l.now())
		if err := l.store.SavePlatform(ctx, st); err != nil {
			return err
		}
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"address", l.address.Hex(),
		"plugins", l.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins. The store is owned by the caller.
func (l *Ledger) Stop(ctx context.Context) error {
	l.plugins.EmitShutdown(ctx)
	l.logger.Info("ledger stopped")
	return nil
}

// Address is the ledger's account on the token ledger.
func (l *Ledger) Address() common.Address { return l.address }

// ──────────────────────────────────────────────────
// Deposits & withdrawals
// ──────────────────────────────────────────────────

// Deposit moves amount of the settlement token from caller into the reserve
// and credits caller's account. caller must have approved the ledger.
func (l *Ledger) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if types.IsZero(amount) {
		return ErrInvalidAmount
	}
	amount = types.Clone(amount)

	return l.mutate(ctx, "deposit", func(ctx context.Context, tx *txn) error {
		st, err := l.platformState(ctx)
		if err != nil {
			return err
		}
		token := st.SettlementToken
		if err := l.requireSettlement(token); err != nil {
			return err
		}

		acct, err := l.loadAccount(ctx, caller)
		if err != nil {
			return err
		}
		prev := acct.Clone()
		if acct.TotalDeposited, err = types.Add(acct.TotalDeposited, amount); err != nil {
			return err
		}
		acct.LastDepositAt = l.now()
		if err := l.saveAccount(ctx, tx, prev, acct); err != nil {
			return err
		}

		approved, err := l.tokens.Allowance(ctx, token, caller, l.address)
		if err != nil {
			return err
		}
		if err := l.tokens.TransferFrom(ctx, token, l.address, caller, l.address, amount); err != nil {
			return fmt.Errorf("tierpay: pull deposit: %w", err)
		}
		tx.onRollback(func(ctx context.Context) error {
			if err := l.tokens.Transfer(ctx, token, l.address, caller, amount); err != nil {
				return err
			}
			return l.tokens.Approve(ctx, token, caller, l.address, approved)
		})

		reserveAddr := l.reserve.Address()
		allowance, err := l.tokens.Allowance(ctx, token, l.address, reserveAddr)
		if err != nil {
			return err
		}
		if err := l.tokens.Approve(ctx, token, l.address, reserveAddr, amount); err != nil {
			return fmt.Errorf("tierpay: approve reserve: %w", err)
		}
		tx.onRollback(func(ctx context.Context) error {
			return l.tokens.Approve(ctx, token, l.address, reserveAddr, allowance)
		})

		if err := l.reserve.Deposit(ctx, l.address, amount, token); err != nil {
			return fmt.Errorf("tierpay: reserve deposit: %w", err)
		}

		e := event.New(event.KindDeposit, caller, l.now())
		e.Counterparty = reserveAddr
		e.Token = token
		e.Amount = amount
		tx.emit(e)

		l.logger.Debug("deposit",
			"user", caller.Hex(),
			"amount", amount.Dec(),
			"total_deposited", acct.TotalDeposited.Dec(),
		)
		return nil
	})
}

// WithdrawUnused settles caller's account and pays back what was not used.
// Usage reported by the usage oracle, when configured, acts as a floor.
// After the call the account has nothing left to spend.
func (l *Ledger) WithdrawUnused(ctx context.Context, caller common.Address) error {
	return l.mutate(ctx, "withdraw_unused", func(ctx context.Context, tx *txn) error {
		st, err := l.platformState(ctx)
		if err != nil {
			return err
		}
		acct, err := l.loadAccount(ctx, caller)
		if err != nil {
			return err
		}

		now := l.now()
		if unlock := acct.UnlockAt(st.LockPeriod); now.Before(unlock) {
			return fmt.Errorf("%w until %s", ErrDepositLocked, unlock.Format(time.RFC3339))
		}

		final := types.Clone(acct.TotalUsed)
		if st.HasUsageOracle() {
			if l.usageOracle == nil {
				return fmt.Errorf("%w: usage oracle reader", ErrNotConfigured)
			}
			reported, err := l.usageOracle.GetUsage(ctx, st.UsageOracle, caller)
			if err != nil {
				return fmt.Errorf("tierpay: usage oracle: %w", err)
			}
			final = types.Max(final, reported)
		}
		leftover := types.SatSub(acct.TotalDeposited, types.Min(final, acct.TotalDeposited))

		prev := acct.Clone()
		acct.TotalUsed = types.Clone(acct.TotalDeposited)
		if err := l.saveAccount(ctx, tx, prev, acct); err != nil {
			return err
		}

		if !leftover.IsZero() {
			if err := l.requireSettlement(st.SettlementToken); err != nil {
				return err
			}
			if err := l.reserve.Withdraw(ctx, l.address, caller, leftover, st.SettlementToken); err != nil {
				return fmt.Errorf("tierpay: reserve withdraw: %w", err)
			}
		}

		e := event.New(event.KindUnusedWithdrawn, caller, now)
		e.Token = st.SettlementToken
		e.Amount = leftover
		e.With("final_usage", final.Dec())
		tx.emit(e)
		return nil
	})
}

// ProviderWithdraw pays caller's accumulated earnings out of the reserve.
func (l *Ledger) ProviderWithdraw(ctx context.Context, caller common.Address) error {
	return l.mutate(ctx, "provider_withdraw", func(ctx context.Context, tx *txn) error {
		p, err := l.store.GetProvider(ctx, caller)
		if err != nil {
			if IsNotFound(err) {
				return ErrNoBalance
			}
			return err
		}
		if types.IsZero(p.Balance) {
			return ErrNoBalance
		}
		st, err := l.platformState(ctx)
		if err != nil {
			return err
		}
		if err := l.requireSettlement(st.SettlementToken); err != nil {
			return err
		}

		prev := p.Clone()
		amount := types.Clone(p.Balance)
		p.Balance = types.Zero()
		if err := l.saveProvider(ctx, tx, prev, p); err != nil {
			return err
		}

		if err := l.reserve.Withdraw(ctx, l.address, caller, amount, st.SettlementToken); err != nil {
			return fmt.Errorf("tierpay: reserve withdraw: %w", err)
		}

		e := event.New(event.KindProviderWithdrawn, caller, l.now())
		e.Token = st.SettlementToken
		e.Amount = amount
		tx.emit(e)
		return nil
	})
}

// WithdrawRoyalty pays the platform's accrued royalty to the receiver.
func (l *Ledger) WithdrawRoyalty(ctx context.Context, caller common.Address) error {
	return l.mutate(ctx, "withdraw_royalty", func(ctx context.Context, tx *txn) error {
		st, err := l.platformState(ctx)
		if err != nil {
			return err
		}
		if st.RoyaltyReceiver == (common.Address{}) || caller != st.RoyaltyReceiver {
			return fmt.Errorf("%w: %s is not the royalty receiver", ErrUnauthorized, caller.Hex())
		}
		if types.IsZero(st.RoyaltyAccrued) {
			return ErrNoBalance
		}
		if err := l.requireSettlement(st.SettlementToken); err != nil {
			return err
		}

		prev := st.Clone()
		amount := types.Clone(st.RoyaltyAccrued)
		st.RoyaltyAccrued = types.Zero()
		if err := l.savePlatform(ctx, tx, prev, st); err != nil {
			return err
		}

		if err := l.reserve.Withdraw(ctx, l.address, caller, amount, st.SettlementToken); err != nil {
			return fmt.Errorf("tierpay: reserve withdraw: %w", err)
		}

		e := event.New(event.KindRoyaltyWithdrawn, caller, l.now())
		e.Token = st.SettlementToken
		e.Amount = amount
		tx.emit(e)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

// UsageQuote is the price of a usage call before it is applied.
type UsageQuote struct {
	User          common.Address `json:"user"`
	Provider      common.Address `json:"provider"`
	Units         uint64         `json:"units"`
	PriorUnits    uint64         `json:"prior_units"`
	BaseCost      *uint256.Int   `json:"base_cost"`
	Discount      *uint256.Int   `json:"discount"`
	Cost          *uint256.Int   `json:"cost"`
	Royalty       *uint256.Int   `json:"royalty"`
	ProviderShare *uint256.Int   `json:"provider_share"`
}

// ApplyUsage bills units of provider's service to user. caller must hold
// the updater role.
func (l *Ledger) ApplyUsage(ctx context.Context, caller, user, prov common.Address, units uint64) (*UsageQuote, error) {
	if err := auth.Require(ctx, l.authority, auth.RoleUpdater, caller, ErrUnauthorized); err != nil {
		return nil, fmt.Errorf("%w: %s is not an updater", err, caller.Hex())
	}
	return l.applyUsage(ctx, user, prov, units)
}

// SelfApplyUsage bills units of provider's service to caller.
func (l *Ledger) SelfApplyUsage(ctx context.Context, caller, prov common.Address, units uint64) (*UsageQuote, error) {
	return l.applyUsage(ctx, caller, prov, units)
}

// QuoteUsage prices units for user without applying them.
func (l *Ledger) QuoteUsage(ctx context.Context, user, prov common.Address, units uint64) (*UsageQuote, error) {
	if units == 0 {
		return nil, ErrInvalidUsage
	}
	p, err := l.registeredProvider(ctx, prov)
	if err != nil {
		return nil, err
	}
	st, err := l.platformState(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := l.loadUsage(ctx, user, prov)
	if err != nil {
		return nil, err
	}
	return l.quote(ctx, st, p, user, usage.Units, units)
}

func (l *Ledger) applyUsage(ctx context.Context, user, prov common.Address, units uint64) (*UsageQuote, error) {
	if units == 0 {
		return nil, ErrInvalidUsage
	}

	var q *UsageQuote
	err := l.mutate(ctx, "apply_usage", func(ctx context.Context, tx *txn) error {
		p, err := l.registeredProvider(ctx, prov)
		if err != nil {
			return err
		}
		st, err := l.platformState(ctx)
		if err != nil {
			return err
		}
		usage, err := l.loadUsage(ctx, user, prov)
		if err != nil {
			return err
		}

		if q, err = l.quote(ctx, st, p, user, usage.Units, units); err != nil {
			return err
		}

		now := l.now()
		e := event.New(event.KindUsageApplied, user, now)
		e.Counterparty = prov
		e.Token = st.SettlementToken

		if q.Cost.IsZero() {
			// Free usage leaves every balance and counter untouched.
			tx.emit(e)
			return nil
		}

		acct, err := l.loadAccount(ctx, user)
		if err != nil {
			return err
		}
		if available := acct.Available(); available.Lt(q.Cost) {
			return fmt.Errorf("%w: %s available, %s required", ErrInsufficientDeposit, available.Dec(), q.Cost.Dec())
		}

		prevAcct := acct.Clone()
		if acct.TotalUsed, err = types.Add(acct.TotalUsed, q.Cost); err != nil {
			return err
		}
		prevProv := p.Clone()
		if p.Balance, err = types.Add(p.Balance, q.ProviderShare); err != nil {
			return err
		}
		prevSt := st.Clone()
		if st.RoyaltyAccrued, err = types.Add(st.RoyaltyAccrued, q.Royalty); err != nil {
			return err
		}
		prevUsage := usage.Clone()
		if usage.Units+units < usage.Units {
			return fmt.Errorf("%w: usage counter", ErrOverflow)
		}
		usage.Units += units

		if err := l.saveAccount(ctx, tx, prevAcct, acct); err != nil {
			return err
		}
		if err := l.saveProvider(ctx, tx, prevProv, p); err != nil {
			return err
		}
		if err := l.savePlatform(ctx, tx, prevSt, st); err != nil {
			return err
		}
		if err := l.saveUsage(ctx, tx, prevUsage, usage); err != nil {
			return err
		}

		e.Units = units
		e.Amount = types.Clone(q.Cost)
		e.With("royalty", q.Royalty.Dec()).
			With("provider_share", q.ProviderShare.Dec()).
			With("prior_units", strconv.FormatUint(q.PriorUnits, 10))
		if !q.Discount.IsZero() {
			e.With("discount", q.Discount.Dec())
		}
		tx.emit(e)

		l.logger.Debug("usage applied",
			"user", user.Hex(),
			"provider", prov.Hex(),
			"units", units,
			"cost", q.Cost.Dec(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// quote runs the pricing pipeline: tier walk, holder discount, royalty split.
func (l *Ledger) quote(ctx context.Context, st *platform.State, p *provider.Provider, user common.Address, prior, units uint64) (*UsageQuote, error) {
	base, err := p.Cost(prior, units)
	if err != nil {
		return nil, err
	}

	discount := types.Zero()
	if st.DiscountBps > 0 && len(st.DiscountCollections) > 0 && !base.IsZero() {
		holds, err := chain.HoldsAny(ctx, l.holdings, user, st.DiscountCollections...)
		if err != nil {
			return nil, fmt.Errorf("tierpay: discount lookup: %w", err)
		}
		if holds {
			if discount, err = types.Bps(base, st.DiscountBps); err != nil {
				return nil, err
			}
		}
	}
	cost := types.SatSub(base, discount)

	royaltyAmt, err := types.Bps(cost, p.EffectiveRoyaltyBps(st.DefaultRoyaltyBps))
	if err != nil {
		return nil, err
	}

	q := &UsageQuote{
		User:          user,
		Provider:      p.Address,
		Units:         units,
		PriorUnits:    prior,
		BaseCost:      base,
		Discount:      discount,
		Cost:          cost,
		Royalty:       royaltyAmt,
		ProviderShare: types.SatSub(cost, royaltyAmt),
	}
	if cost.IsZero() {
		q.Units = 0
	}
	return q, nil
}

// ──────────────────────────────────────────────────
// Providers
// ──────────────────────────────────────────────────

// RegisterProvider registers caller as a provider, or overwrites its royalty
// override and fallback rate. A zero royaltyBps uses the platform default.
func (l *Ledger) RegisterProvider(ctx context.Context, caller common.Address, royaltyBps uint64, fallbackRate *uint256.Int) error {
	if royaltyBps > types.BasisPoints {
		return ValidationError{Field: "royalty_bps", Message: "must not exceed 10000"}
	}

	return l.mutate(ctx, "register_provider", func(ctx context.Context, tx *txn) error {
		p, err := l.loadProvider(ctx, caller)
		if err != nil {
			return err
		}
		prev := p.Clone()
		p.Registered = true
		p.RoyaltyBps = royaltyBps
		p.FallbackRate = types.Clone(fallbackRate)
		if err := l.saveProvider(ctx, tx, prev, p); err != nil {
			return err
		}

		e := event.New(event.KindProviderRegistered, caller, l.now())
		e.Amount = types.Clone(p.FallbackRate)
		e.With("royalty_bps", strconv.FormatUint(royaltyBps, 10))
		tx.emit(e)
		return nil
	})
}

// SetProviderTiers replaces caller's tier schedule. Thresholds are
// cumulative unit counts and must be strictly ascending.
func (l *Ledger) SetProviderTiers(ctx context.Context, caller common.Address, thresholds []uint64, rates []*uint256.Int) error {
	tiers, err := provider.NewTiers(thresholds, rates)
	if err != nil {
		return err
	}

	return l.mutate(ctx, "set_provider_tiers", func(ctx context.Context, tx *txn) error {
		p, err := l.registeredProvider(ctx, caller)
		if err != nil {
			return err
		}
		prev := p.Clone()
		p.Tiers = tiers
		if err := l.saveProvider(ctx, tx, prev, p); err != nil {
			return err
		}

		e := event.New(event.KindProviderTiersSet, caller, l.now())
		e.With("tiers", strconv.Itoa(len(tiers)))
		tx.emit(e)
		return nil
	})
}

// UnregisterProvider clears caller's pricing. Earned balance stays withdrawable.
func (l *Ledger) UnregisterProvider(ctx context.Context, caller common.Address) error {
	return l.mutate(ctx, "unregister_provider", func(ctx context.Context, tx *txn) error {
		p, err := l.registeredProvider(ctx, caller)
		if err != nil {
			return err
		}
		prev := p.Clone()
		p.Unregister()
		if err := l.saveProvider(ctx, tx, prev, p); err != nil {
			return err
		}
		tx.emit(event.New(event.KindProviderUnregistered, caller, l.now()))
		return nil
	})
}

// ──────────────────────────────────────────────────
// Governance
// ──────────────────────────────────────────────────

// SetSettlementToken sets the token deposits are made in.
func (l *Ledger) SetSettlementToken(ctx context.Context, caller, token common.Address) error {
	if token == (common.Address{}) {
		return ValidationError{Field: "settlement_token", Message: "must not be the zero address"}
	}
	return l.configure(ctx, caller, "settlement_token", token.Hex(), func(st *platform.State) {
		st.SettlementToken = token
	})
}

// SetLockPeriod sets how long deposits stay locked. Zero disables the lock.
func (l *Ledger) SetLockPeriod(ctx context.Context, caller common.Address, seconds uint64) error {
	d, err := secondsToDuration(seconds)
	if err != nil {
		return err
	}
	return l.configure(ctx, caller, "lock_period", strconv.FormatUint(seconds, 10), func(st *platform.State) {
		st.LockPeriod = d
	})
}

// SetDefaultRoyaltyBps sets the royalty taken from providers without an override.
func (l *Ledger) SetDefaultRoyaltyBps(ctx context.Context, caller common.Address, bps uint64) error {
	if bps > types.BasisPoints {
		return ValidationError{Field: "default_royalty_bps", Message: "must not exceed 10000"}
	}
	return l.configure(ctx, caller, "default_royalty_bps", strconv.FormatUint(bps, 10), func(st *platform.State) {
		st.DefaultRoyaltyBps = bps
	})
}

// SetRoyaltyReceiver sets the account allowed to withdraw accrued royalty.
func (l *Ledger) SetRoyaltyReceiver(ctx context.Context, caller, receiver common.Address) error {
	if receiver == (common.Address{}) {
		return ValidationError{Field: "royalty_receiver", Message: "must not be the zero address"}
	}
	return l.configure(ctx, caller, "royalty_receiver", receiver.Hex(), func(st *platform.State) {
		st.RoyaltyReceiver = receiver
	})
}

// SetUsageOracle sets the usage oracle. The zero address disables it.
func (l *Ledger) SetUsageOracle(ctx context.Context, caller, oracle common.Address) error {
	return l.configure(ctx, caller, "usage_oracle", oracle.Hex(), func(st *platform.State) {
		st.UsageOracle = oracle
	})
}

// SetDiscountBps sets the discount granted to holders of a discount collection.
func (l *Ledger) SetDiscountBps(ctx context.Context, caller common.Address, bps uint64) error {
	if bps > types.BasisPoints {
		return ValidationError{Field: "discount_bps", Message: "must not exceed 10000"}
	}
	return l.configure(ctx, caller, "discount_bps", strconv.FormatUint(bps, 10), func(st *platform.State) {
		st.DiscountBps = bps
	})
}

// SetDiscountCollections replaces the NFT collections that earn the discount.
func (l *Ledger) SetDiscountCollections(ctx context.Context, caller common.Address, collections []common.Address) error {
	set := make([]common.Address, 0, len(collections))
	seen := make(map[common.Address]bool, len(collections))
	for _, c := range collections {
		if c == (common.Address{}) || seen[c] {
			continue
		}
		seen[c] = true
		set = append(set, c)
	}
	return l.configure(ctx, caller, "discount_collections", strconv.Itoa(len(set)), func(st *platform.State) {
		st.DiscountCollections = set
	})
}

func (l *Ledger) configure(ctx context.Context, caller common.Address, key, value string, apply func(*platform.State)) error {
	return l.mutate(ctx, "set_"+key, func(ctx context.Context, tx *txn) error {
		if err := auth.Require(ctx, l.authority, auth.RoleGovernor, caller, ErrUnauthorized); err != nil {
			return fmt.Errorf("%w: %s is not a governor", err, caller.Hex())
		}
		st, err := l.platformState(ctx)
		if err != nil {
			return err
		}
		prev := st.Clone()
		apply(st)
		if err := l.savePlatform(ctx, tx, prev, st); err != nil {
			return err
		}

		e := event.New(event.KindConfigChanged, caller, l.now())
		e.With("key", key).With("value", value)
		tx.emit(e)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Views
// ──────────────────────────────────────────────────

// Account returns user's account; users who never deposited get a zero account.
func (l *Ledger) Account(ctx context.Context, user common.Address) (*account.Account, error) {
	return l.loadAccount(ctx, user)
}

// Usage returns the cumulative units user consumed from provider.
func (l *Ledger) Usage(ctx context.Context, user, prov common.Address) (*account.Usage, error) {
	return l.loadUsage(ctx, user, prov)
}

// Provider returns a provider record.
func (l *Ledger) Provider(ctx context.Context, addr common.Address) (*provider.Provider, error) {
	return l.store.GetProvider(ctx, addr)
}

// ListProviders lists providers.
func (l *Ledger) ListProviders(ctx context.Context, opts provider.ListOpts) ([]*provider.Provider, error) {
	return l.store.ListProviders(ctx, opts)
}

// Platform returns the platform configuration and accrued royalty.
func (l *Ledger) Platform(ctx context.Context) (*platform.State, error) {
	return l.platformState(ctx)
}

// Events lists the ledger's journal entries, newest first. Entries written
// by a gate sharing the store are left out.
func (l *Ledger) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	scoped, ok := opts.Scope(event.LedgerKinds())
	if !ok {
		return []*event.Event{}, nil
	}
	return l.store.ListEvents(ctx, scoped)
}

// ──────────────────────────────────────────────────
// Persistence helpers
// ──────────────────────────────────────────────────

func secondsToDuration(seconds uint64) (time.Duration, error) {
	if seconds > uint64(math.MaxInt64/int64(time.Second)) {
		return 0, ValidationError{Field: "lock_period", Message: "out of range"}
	}
	return time.Duration(seconds) * time.Second, nil
}

func (l *Ledger) requireSettlement(token common.Address) error {
	switch {
	case token == (common.Address{}):
		return fmt.Errorf("%w: settlement token", ErrNotConfigured)
	case l.tokens == nil:
		return fmt.Errorf("%w: token ledger", ErrNotConfigured)
	case l.reserve == nil:
		return fmt.Errorf("%w: reserve", ErrNotConfigured)
	}
	return nil
}

func (l *Ledger) platformState(ctx context.Context) (*platform.State, error) {
	st, err := l.store.GetPlatform(ctx)
	if IsNotFound(err) {
		return platform.NewState(l.defaults), nil
	}
	return st, err
}

func (l *Ledger) loadAccount(ctx context.Context, user common.Address) (*account.Account, error) {
	a, err := l.store.GetAccount(ctx, user)
	if IsNotFound(err) {
		return account.New(user), nil
	}
	return a, err
}

func (l *Ledger) loadUsage(ctx context.Context, user, prov common.Address) (*account.Usage, error) {
	u, err := l.store.GetUsage(ctx, user, prov)
	if IsNotFound(err) {
		return &account.Usage{User: user, Provider: prov}, nil
	}
	return u, err
}

func (l *Ledger) loadProvider(ctx context.Context, addr common.Address) (*provider.Provider, error) {
	p, err := l.store.GetProvider(ctx, addr)
	if IsNotFound(err) {
		return provider.New(addr), nil
	}
	return p, err
}

func (l *Ledger) registeredProvider(ctx context.Context, addr common.Address) (*provider.Provider, error) {
	p, err := l.store.GetProvider(ctx, addr)
	if IsNotFound(err) || (err == nil && !p.Registered) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, addr.Hex())
	}
	return p, err
}

func (l *Ledger) saveAccount(ctx context.Context, tx *txn, prev, next *account.Account) error {
	next.Touch(l.now())
	return persist(ctx, tx, l.store.SaveAccount, prev, next)
}

func (l *Ledger) saveUsage(ctx context.Context, tx *txn, prev, next *account.Usage) error {
	next.Touch(l.now())
	return persist(ctx, tx, l.store.SaveUsage, prev, next)
}

func (l *Ledger) saveProvider(ctx context.Context, tx *txn, prev, next *provider.Provider) error {
	next.Touch(l.now())
	return persist(ctx, tx, l.store.SaveProvider, prev, next)
}

func (l *Ledger) savePlatform(ctx context.Context, tx *txn, prev, next *platform.State) error {
	next.Touch(l.now())
	return persist(ctx, tx, l.store.SavePlatform, prev, next)
}

// persist saves next and logs prev for rollback.
func persist[T any](ctx context.Context, tx *txn, save func(context.Context, T) error, prev, next T) error {
	if err := save(ctx, next); err != nil {
		return err
	}
	tx.onRollback(func(ctx context.Context) error { return save(ctx, prev) })
	return nil
}
