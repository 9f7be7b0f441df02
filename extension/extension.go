// Package extension provides the Forge extension adapter for tierpay.
//
// It registers the usage-billing ledger and the royalty transfer gate in a
// Forge application's DI container, runs their lifecycle with the app and
// builds the HTTP API handler for the host to mount.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tierpay" or "tierpay" keys.
package extension

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tierpay"
	"github.com/xraph/tierpay/api"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tierpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tiered usage billing and NFT royalty gate"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tierpay as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	ledger     *tierpay.Ledger
	gate       *tierpay.Gate
	handler    http.Handler
	store      store.Store
	engineOpts []tierpay.Option
	ledgerOpts []tierpay.Option
	gateOpts   []tierpay.Option
}

// New creates a new tierpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the billing engine, nil until Register or when disabled.
func (e *Extension) Ledger() *tierpay.Ledger { return e.ledger }

// Gate returns the royalty gate, nil until Register or when disabled.
func (e *Extension) Gate() *tierpay.Gate { return e.gate }

// Handler returns the HTTP API, nil when routes are disabled or no JWT
// secret is configured. Mount it under Config.BasePath.
func (e *Extension) Handler() http.Handler { return e.handler }

// BasePath returns the resolved route prefix.
func (e *Extension) BasePath() string { return e.config.BasePath }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engines, and registers them in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.config.DisableLedger && e.config.DisableGate {
		return errors.New("tierpay: both engines are disabled")
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	s := e.store
	if e.config.DisableMigrate {
		s = skipMigrate{s}
	}

	if !e.config.DisableLedger {
		e.ledger = tierpay.New(s, e.buildOpts(e.ledgerOpts)...)
		if err := vessel.Provide(fapp.Container(), func() (*tierpay.Ledger, error) {
			return e.ledger, nil
		}); err != nil {
			return err
		}
	}
	if !e.config.DisableGate {
		e.gate = tierpay.NewGate(s, e.buildOpts(e.gateOpts)...)
		if err := vessel.Provide(fapp.Container(), func() (*tierpay.Gate, error) {
			return e.gate, nil
		}); err != nil {
			return err
		}
	}

	if !e.config.DisableRoutes && e.config.JWTSecret != "" {
		e.handler = api.NewRouter(api.NewHandler(
			api.WithLedger(e.ledger),
			api.WithGate(e.gate),
			api.WithDecimals(e.config.Decimals),
		), []byte(e.config.JWTSecret))
	}
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.ledger == nil && e.gate == nil {
		return errors.New("tierpay: extension not initialized")
	}
	if e.ledger != nil {
		if err := e.ledger.Start(ctx); err != nil {
			return err
		}
	}
	if e.gate != nil {
		if err := e.gate.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error
	if e.gate != nil {
		errs = append(errs, e.gate.Stop(ctx))
	}
	if e.ledger != nil {
		errs = append(errs, e.ledger.Stop(ctx))
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tierpay: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildOpts constructs engine options from the resolved config; engine
// specific options are applied last.
func (e *Extension) buildOpts(specific []tierpay.Option) []tierpay.Option {
	opts := make([]tierpay.Option, 0, len(e.engineOpts)+len(specific)+1)
	if e.config.PluginTimeout > 0 {
		opts = append(opts, tierpay.WithPluginTimeout(e.config.PluginTimeout))
	}
	opts = append(opts, e.engineOpts...)
	return append(opts, specific...)
}

// skipMigrate leaves schema management to the operator.
type skipMigrate struct{ store.Store }

func (skipMigrate) Migrate(context.Context) error { return nil }

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tierpay: configuration is required but not found in config files; " +
				"ensure 'extensions.tierpay' or 'tierpay' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tierpay: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_ledger", e.config.DisableLedger),
		forge.F("disable_gate", e.config.DisableGate),
		forge.F("base_path", e.config.BasePath),
		forge.F("decimals", e.config.Decimals),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)
	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.tierpay", "tierpay"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tierpay: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tierpay: loaded config from file", forge.F("key", key))
		return cfg, true
	}
	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = defaults.Decimals
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableLedger {
		yamlConfig.DisableLedger = true
	}
	if programmaticConfig.DisableGate {
		yamlConfig.DisableGate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.JWTSecret == "" {
		yamlConfig.JWTSecret = programmaticConfig.JWTSecret
	}
	if yamlConfig.Decimals == 0 {
		yamlConfig.Decimals = programmaticConfig.Decimals
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
