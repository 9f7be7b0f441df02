// Package account holds prepaid user balances and per-provider usage counters.
package account

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/types"
)

// Account is a user's prepaid position. TotalUsed never exceeds
// TotalDeposited; the difference is the spendable balance.
type Account struct {
	types.Entity
	User           common.Address `json:"user"`
	TotalDeposited *uint256.Int   `json:"total_deposited"`
	TotalUsed      *uint256.Int   `json:"total_used"`
	LastDepositAt  time.Time      `json:"last_deposit_at"`
}

// New returns a zeroed account for user.
func New(user common.Address) *Account {
	return &Account{
		User:           user,
		TotalDeposited: types.Zero(),
		TotalUsed:      types.Zero(),
	}
}

// Available returns TotalDeposited - TotalUsed.
func (a *Account) Available() *uint256.Int {
	return types.SatSub(a.TotalDeposited, a.TotalUsed)
}

// UnlockAt is the earliest time unused funds may be withdrawn.
func (a *Account) UnlockAt(lock time.Duration) time.Time {
	return a.LastDepositAt.Add(lock)
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.TotalDeposited = types.Clone(a.TotalDeposited)
	c.TotalUsed = types.Clone(a.TotalUsed)
	return &c
}

// Usage is the cumulative number of units billed to User by Provider. The
// tier walk for the next usage call starts here.
type Usage struct {
	types.Entity
	User     common.Address `json:"user"`
	Provider common.Address `json:"provider"`
	Units    uint64         `json:"units"`
}

// Clone returns a copy.
func (u *Usage) Clone() *Usage {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
