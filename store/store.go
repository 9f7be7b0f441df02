// Package store defines the aggregate persistence interface for tierpay.
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
)

// Store errors. Backends wrap ErrNotFound for every missing record.
var (
	ErrNotFound = errors.New("tierpay: not found")
	ErrClosed   = errors.New("tierpay: store is closed")
)

// Store is the unified storage interface for every tierpay record. Getters
// return copies; callers persist changes through the matching Save method.
type Store interface {
	// Account methods
	GetAccount(ctx context.Context, user common.Address) (*account.Account, error)
	SaveAccount(ctx context.Context, a *account.Account) error
	GetUsage(ctx context.Context, user, provider common.Address) (*account.Usage, error)
	SaveUsage(ctx context.Context, u *account.Usage) error

	// Provider methods
	GetProvider(ctx context.Context, addr common.Address) (*provider.Provider, error)
	SaveProvider(ctx context.Context, p *provider.Provider) error
	ListProviders(ctx context.Context, opts provider.ListOpts) ([]*provider.Provider, error)

	// Platform methods
	GetPlatform(ctx context.Context) (*platform.State, error)
	SavePlatform(ctx context.Context, s *platform.State) error

	// Royalty methods
	GetRoyaltyToken(ctx context.Context, tokenID uint64) (*royalty.Token, error)
	SaveRoyaltyToken(ctx context.Context, t *royalty.Token) error
	GetRoyaltyConfig(ctx context.Context) (*royalty.Config, error)
	SaveRoyaltyConfig(ctx context.Context, c *royalty.Config) error

	// Journal methods
	AppendEvent(ctx context.Context, e *event.Event) error
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that Store covers every entity store.
var (
	_ account.Store  = Store(nil)
	_ provider.Store = Store(nil)
	_ platform.Store = Store(nil)
	_ royalty.Store  = Store(nil)
	_ event.Store    = Store(nil)
)
