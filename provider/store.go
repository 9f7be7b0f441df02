package provider

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists providers.
type Store interface {
	GetProvider(ctx context.Context, addr common.Address) (*Provider, error)
	SaveProvider(ctx context.Context, p *Provider) error
	ListProviders(ctx context.Context, opts ListOpts) ([]*Provider, error)
}
