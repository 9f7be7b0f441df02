// Package chain declares the external collaborators the billing ledger and
// royalty gate settle through: a fungible-token ledger, a custody reserve,
// a pool price oracle, a usage oracle and NFT balance lookups.
//
// In-process implementations live in erc20, treasury and nft; the evm
// package reads the same interfaces from deployed contracts.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tokens is a multi-token fungible ledger with ERC-20 semantics. Every call
// names the token contract it operates on; spender and owner arguments stand
// in for msg.sender.
type Tokens interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
	Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error
}

// Leg is one payment in a batch.
type Leg struct {
	To     common.Address
	Amount *uint256.Int
}

// BatchTransferer is implemented by token ledgers that can pay several
// recipients from one account atomically: either every leg settles or none.
type BatchTransferer interface {
	TransferBatch(ctx context.Context, token, from common.Address, legs []Leg) error
}

// Reserve holds settled funds on behalf of its permitted depositors.
type Reserve interface {
	// Address is the account depositors approve before Deposit.
	Address() common.Address
	// Deposit pulls amount of token from depositor, which must have approved the reserve.
	Deposit(ctx context.Context, depositor common.Address, amount *uint256.Int, token common.Address) error
	// Withdraw pays amount of token to to on behalf of spender.
	Withdraw(ctx context.Context, spender, to common.Address, amount *uint256.Int, token common.Address) error
}

// Reserves is a constant-product pool snapshot.
type Reserves struct {
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
	Token0   common.Address
}

// PriceOracle reads pool reserves.
type PriceOracle interface {
	GetReserves(ctx context.Context, pair common.Address) (Reserves, error)
}

// UsageOracle reports the usage, in settlement-token base units, an external
// metering system has attributed to user.
type UsageOracle interface {
	GetUsage(ctx context.Context, oracle, user common.Address) (*uint256.Int, error)
}

// Holdings reports how many NFTs of collection owner holds.
type Holdings interface {
	BalanceOf(ctx context.Context, collection, owner common.Address) (uint64, error)
}

// HoldsAny reports whether owner holds at least one NFT of any collection.
func HoldsAny(ctx context.Context, h Holdings, owner common.Address, collections ...common.Address) (bool, error) {
	if h == nil {
		return false, nil
	}
	for _, c := range collections {
		n, err := h.BalanceOf(ctx, c, owner)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}
