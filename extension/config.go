package extension

import "time"

// Config holds the tierpay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tierpay" or "tierpay" keys).
type Config struct {
	// DisableRoutes prevents building the HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableLedger skips the usage-billing engine.
	DisableLedger bool `json:"disable_ledger" mapstructure:"disable_ledger" yaml:"disable_ledger"`

	// DisableGate skips the royalty transfer gate.
	DisableGate bool `json:"disable_gate" mapstructure:"disable_gate" yaml:"disable_gate"`

	// BasePath is the URL prefix the host should mount Handler under (default: "/tierpay").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Decimals is the settlement-token precision used by the HTTP API (default: 18).
	Decimals int32 `json:"decimals" mapstructure:"decimals" yaml:"decimals"`

	// JWTSecret signs and verifies HS256 bearer tokens. Routes are not built without it.
	JWTSecret string `json:"-" mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/tierpay",
		Decimals:      18,
		PluginTimeout: 5 * time.Second,
	}
}
