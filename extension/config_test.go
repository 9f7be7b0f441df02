package extension

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/tierpay/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Decimals: 6})
	if cfg.BasePath != "/tierpay" {
		t.Errorf("BasePath = %q, want /tierpay", cfg.BasePath)
	}
	if cfg.Decimals != 6 {
		t.Errorf("Decimals = %d, want 6", cfg.Decimals)
	}
	if cfg.PluginTimeout != 5*time.Second {
		t.Errorf("PluginTimeout = %v, want 5s", cfg.PluginTimeout)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{BasePath: "/billing", Decimals: 8}
	prog := Config{
		BasePath:       "/ignored",
		JWTSecret:      "s3cret",
		DisableMigrate: true,
		DisableGate:    true,
		PluginTimeout:  time.Second,
	}

	got := mergeConfigurations(yaml, prog)
	if got.BasePath != "/billing" {
		t.Errorf("BasePath = %q, want file value", got.BasePath)
	}
	if got.Decimals != 8 {
		t.Errorf("Decimals = %d, want 8", got.Decimals)
	}
	if got.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret not filled from options")
	}
	if !got.DisableMigrate || !got.DisableGate {
		t.Errorf("programmatic flags lost: %+v", got)
	}
	if got.DisableLedger || got.DisableRoutes {
		t.Errorf("unexpected flags set: %+v", got)
	}
	if got.PluginTimeout != time.Second {
		t.Errorf("PluginTimeout = %v, want 1s", got.PluginTimeout)
	}
}

func TestSkipMigrate(t *testing.T) {
	s := skipMigrate{memory.New()}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOptions(t *testing.T) {
	e := New(
		WithBasePath("/pay"),
		WithJWTSecret("k"),
		WithDisableRoutes(),
		WithDisableMigrate(),
		WithRequireConfig(true),
		WithStore(memory.New()),
	)
	if e.config.BasePath != "/pay" || e.config.JWTSecret != "k" {
		t.Errorf("unexpected config %+v", e.config)
	}
	if !e.config.DisableRoutes || !e.config.DisableMigrate || !e.config.RequireConfig {
		t.Errorf("flags not applied: %+v", e.config)
	}
	if e.store == nil {
		t.Error("store not set")
	}
	if e.Name() != ExtensionName {
		t.Errorf("Name = %q", e.Name())
	}
}
