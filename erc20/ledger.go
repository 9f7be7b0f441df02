// Package erc20 is an in-process multi-token ledger with ERC-20 balance and
// allowance semantics. It backs the billing ledger and royalty gate when they
// run off-chain and in tests.
package erc20

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/types"
)

// Ledger errors.
var (
	ErrInsufficientBalance   = errors.New("erc20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("erc20: insufficient allowance")
	ErrZeroAddress           = errors.New("erc20: zero address")
)

var (
	_ chain.Tokens          = (*Ledger)(nil)
	_ chain.BatchTransferer = (*Ledger)(nil)
)

// Hook observes a movement before it settles. Returning an error aborts it.
// Hooks run without the ledger lock held and may call back into the ledger.
type Hook func(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error

type allowanceKey struct{ owner, spender common.Address }

type book struct {
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
}

// Ledger holds balances and allowances for any number of token contracts.
type Ledger struct {
	mu     sync.RWMutex
	tokens map[common.Address]*book
	hook   Hook
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHook installs a pre-transfer hook.
func WithHook(h Hook) Option {
	return func(l *Ledger) { l.hook = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		tokens: make(map[common.Address]*book),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// book returns the book for token, creating it. Caller holds l.mu.
func (l *Ledger) book(token common.Address) *book {
	b, ok := l.tokens[token]
	if !ok {
		b = &book{
			balances:   make(map[common.Address]*uint256.Int),
			allowances: make(map[allowanceKey]*uint256.Int),
			supply:     types.Zero(),
		}
		l.tokens[token] = b
	}
	return b
}

// Mint credits amount of token to to.
func (l *Ledger) Mint(_ context.Context, token, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.book(token)
	supply, err := types.Add(b.supply, amount)
	if err != nil {
		return err
	}
	bal, err := types.Add(b.balances[to], amount)
	if err != nil {
		return err
	}
	b.supply = supply
	b.balances[to] = bal
	return nil
}

// TotalSupply returns the minted supply of token.
func (l *Ledger) TotalSupply(_ context.Context, token common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.tokens[token]; ok {
		return types.Clone(b.supply)
	}
	return types.Zero()
}

// BalanceOf implements chain.Tokens.
func (l *Ledger) BalanceOf(_ context.Context, token, owner common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.tokens[token]; ok {
		return types.Clone(b.balances[owner]), nil
	}
	return types.Zero(), nil
}

// Allowance implements chain.Tokens.
func (l *Ledger) Allowance(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.tokens[token]; ok {
		return types.Clone(b.allowances[allowanceKey{owner, spender}]), nil
	}
	return types.Zero(), nil
}

// Approve implements chain.Tokens. It overwrites any previous allowance.
func (l *Ledger) Approve(_ context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.book(token).allowances[allowanceKey{owner, spender}] = types.Clone(amount)
	return nil
}

// Transfer implements chain.Tokens.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if err := l.observe(ctx, token, from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(l.book(token), from, to, amount)
}

// TransferFrom implements chain.Tokens. spender's allowance from from is
// consumed by amount.
func (l *Ledger) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	if err := l.observe(ctx, token, from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.book(token)
	key := allowanceKey{from, spender}
	remaining, err := types.Sub(b.allowances[key], amount)
	if err != nil {
		return fmt.Errorf("%w: spender %s", ErrInsufficientAllowance, spender.Hex())
	}
	if err := l.move(b, from, to, amount); err != nil {
		return err
	}
	b.allowances[key] = remaining
	return nil
}

// TransferBatch implements chain.BatchTransferer. Every leg settles or none do.
func (l *Ledger) TransferBatch(ctx context.Context, token, from common.Address, legs []chain.Leg) error {
	total := types.Zero()
	for _, leg := range legs {
		if err := l.observe(ctx, token, from, leg.To, leg.Amount); err != nil {
			return err
		}
		sum, err := types.Add(total, leg.Amount)
		if err != nil {
			return err
		}
		total = sum
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.book(token)
	if types.Clone(b.balances[from]).Lt(total) {
		return fmt.Errorf("%w: %s holds %s, batch needs %s",
			ErrInsufficientBalance, from.Hex(), types.String(b.balances[from]), total.Dec())
	}
	for _, leg := range legs {
		if leg.To == (common.Address{}) {
			return ErrZeroAddress
		}
	}
	for _, leg := range legs {
		if err := l.move(b, from, leg.To, leg.Amount); err != nil {
			// Unreachable after the checks above.
			return err
		}
	}
	return nil
}

// move debits from and credits to. Caller holds l.mu.
func (l *Ledger) move(b *book, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	debited, err := types.Sub(b.balances[from], amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			ErrInsufficientBalance, from.Hex(), types.String(b.balances[from]), types.String(amount))
	}
	b.balances[from] = debited
	credited, err := types.Add(b.balances[to], amount)
	if err != nil {
		return err
	}
	b.balances[to] = credited
	l.logger.Debug("erc20: transfer",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", types.String(amount),
	)
	return nil
}

func (l *Ledger) observe(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if l.hook == nil {
		return nil
	}
	return l.hook(ctx, token, from, to, amount)
}
