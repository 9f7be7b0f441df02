package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/tierpay"
	"github.com/xraph/tierpay/plugin"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/store/mongo"
	"github.com/xraph/tierpay/store/postgres"
	"github.com/xraph/tierpay/store/sqlite"
)

// Option configures the tierpay Forge extension.
type Option func(*Extension)

// WithStore sets the store shared by both engines.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the engines with a PostgreSQL grove database.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) { e.store = postgres.New(db) }
}

// WithSQLite backs the engines with a SQLite grove database.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) { e.store = sqlite.New(db) }
}

// WithMongo backs the engines with a MongoDB grove database.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) { e.store = mongo.New(db) }
}

// WithEngineOption passes a tierpay.Option through to both engines.
func WithEngineOption(opt tierpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a plugin on both engines.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tierpay.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents building the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for tierpay routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithJWTSecret sets the HS256 secret for the HTTP API.
func WithJWTSecret(secret string) Option {
	return func(e *Extension) { e.config.JWTSecret = secret }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithLedgerOption passes a tierpay.Option to the billing ledger only.
func WithLedgerOption(opt tierpay.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithGateOption passes a tierpay.Option to the royalty gate only.
func WithGateOption(opt tierpay.Option) Option {
	return func(e *Extension) {
		e.gateOpts = append(e.gateOpts, opt)
	}
}
