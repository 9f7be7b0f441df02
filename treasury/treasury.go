// Package treasury is the custody reserve billed funds settle into. Only
// permitted depositors may pay in, only permitted spenders may pay out, and
// only permitted reserve tokens are accepted.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/chain"
)

// Permission kinds.
type Permission string

const (
	PermDepositor    Permission = "depositor"
	PermSpender      Permission = "spender"
	PermReserveToken Permission = "reserve_token"
)

// Treasury errors.
var (
	ErrNotPermitted  = errors.New("treasury: not permitted")
	ErrNotGovernor   = errors.New("treasury: caller is not a governor")
	ErrUnknownPerm   = errors.New("treasury: unknown permission kind")
	ErrInvalidAmount = errors.New("treasury: amount must be positive")
)

var _ chain.Reserve = (*Treasury)(nil)

// Treasury implements chain.Reserve over a token ledger.
type Treasury struct {
	address   common.Address
	tokens    chain.Tokens
	authority auth.Authority
	logger    *slog.Logger

	mu    sync.RWMutex
	perms map[Permission]map[common.Address]bool
}

// New returns a treasury holding its funds at address on tokens. Governors
// of authority manage the permission table.
func New(address common.Address, tokens chain.Tokens, authority auth.Authority, logger *slog.Logger) *Treasury {
	if logger == nil {
		logger = slog.Default()
	}
	return &Treasury{
		address:   address,
		tokens:    tokens,
		authority: authority,
		logger:    logger,
		perms: map[Permission]map[common.Address]bool{
			PermDepositor:    {},
			PermSpender:      {},
			PermReserveToken: {},
		},
	}
}

// Address is the account the treasury holds funds in.
func (t *Treasury) Address() common.Address { return t.address }

// SetPermission grants or revokes kind for account on behalf of a governor.
func (t *Treasury) SetPermission(ctx context.Context, caller common.Address, kind Permission, account common.Address, allowed bool) error {
	if err := auth.Require(ctx, t.authority, auth.RoleGovernor, caller, ErrNotGovernor); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	table, ok := t.perms[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPerm, kind)
	}
	if allowed {
		table[account] = true
	} else {
		delete(table, account)
	}
	t.logger.Info("treasury: permission changed",
		"kind", kind,
		"account", account.Hex(),
		"allowed", allowed,
	)
	return nil
}

// Permitted reports whether account holds kind.
func (t *Treasury) Permitted(kind Permission, account common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.perms[kind][account]
}

// Deposit implements chain.Reserve.
func (t *Treasury) Deposit(ctx context.Context, depositor common.Address, amount *uint256.Int, token common.Address) error {
	if err := t.check(PermDepositor, depositor, token, amount); err != nil {
		return err
	}
	return t.tokens.TransferFrom(ctx, token, t.address, depositor, t.address, amount)
}

// Withdraw implements chain.Reserve.
func (t *Treasury) Withdraw(ctx context.Context, spender, to common.Address, amount *uint256.Int, token common.Address) error {
	if err := t.check(PermSpender, spender, token, amount); err != nil {
		return err
	}
	return t.tokens.Transfer(ctx, token, t.address, to, amount)
}

// Balance returns the treasury's holding of token.
func (t *Treasury) Balance(ctx context.Context, token common.Address) (*uint256.Int, error) {
	return t.tokens.BalanceOf(ctx, token, t.address)
}

func (t *Treasury) check(kind Permission, account, token common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if !t.Permitted(kind, account) {
		return fmt.Errorf("%w: %s is not a %s", ErrNotPermitted, account.Hex(), kind)
	}
	if !t.Permitted(PermReserveToken, token) {
		return fmt.Errorf("%w: %s is not a reserve token", ErrNotPermitted, token.Hex())
	}
	return nil
}
