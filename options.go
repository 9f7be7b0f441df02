package tierpay

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/plugin"
	"github.com/xraph/tierpay/royalty"
)

// Option configures a Ledger or a Gate. Options that only concern one
// engine are ignored by the other.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	plugins       []plugin.Plugin
	pluginTimeout time.Duration
	clock         func() time.Time

	address     common.Address
	tokens      chain.Tokens
	reserve     chain.Reserve
	authority   auth.Authority
	usageOracle chain.UsageOracle
	holdings    chain.Holdings
	prices      chain.PriceOracle

	platformDefaults platform.Config
	royaltyDefaults  royalty.Config
}

func defaultOptions() *options {
	return &options{
		logger:           slog.Default(),
		clock:            time.Now,
		platformDefaults: platform.DefaultConfig(),
		royaltyDefaults:  royalty.DefaultConfig(),
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}

// WithPluginTimeout bounds each plugin call.
func WithPluginTimeout(d time.Duration) Option {
	return func(o *options) { o.pluginTimeout = d }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithAddress sets the engine's own account on the token ledger.
func WithAddress(addr common.Address) Option {
	return func(o *options) { o.address = addr }
}

// WithTokens sets the fungible token ledger.
func WithTokens(t chain.Tokens) Option {
	return func(o *options) { o.tokens = t }
}

// WithReserve sets the custody reserve deposits settle into.
func WithReserve(r chain.Reserve) Option {
	return func(o *options) { o.reserve = r }
}

// WithAuthority sets the role authority.
func WithAuthority(a auth.Authority) Option {
	return func(o *options) { o.authority = a }
}

// WithUsageOracle sets the reader for the platform's usage oracle.
func WithUsageOracle(u chain.UsageOracle) Option {
	return func(o *options) { o.usageOracle = u }
}

// WithHoldings sets the NFT balance lookup used for discounts and founder passes.
func WithHoldings(h chain.Holdings) Option {
	return func(o *options) { o.holdings = h }
}

// WithPriceOracle sets the pool reserve reader used to price royalties.
func WithPriceOracle(p chain.PriceOracle) Option {
	return func(o *options) { o.prices = p }
}

// WithPlatformDefaults sets the billing configuration seeded on first start.
func WithPlatformDefaults(cfg platform.Config) Option {
	return func(o *options) { o.platformDefaults = cfg }
}

// WithRoyaltyDefaults sets the gate configuration seeded on first start.
func WithRoyaltyDefaults(cfg royalty.Config) Option {
	return func(o *options) { o.royaltyDefaults = cfg }
}

func (o *options) registry() *plugin.Registry {
	r := plugin.NewRegistry().WithLogger(o.logger).WithTimeout(o.pluginTimeout)
	for _, p := range o.plugins {
		if err := r.Register(p); err != nil {
			o.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
	return r
}
