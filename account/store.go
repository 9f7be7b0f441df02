package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists accounts and usage counters.
type Store interface {
	GetAccount(ctx context.Context, user common.Address) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
	GetUsage(ctx context.Context, user, provider common.Address) (*Usage, error)
	SaveUsage(ctx context.Context, u *Usage) error
}
