// Package plugin provides an extensible plugin system for tierpay.
// Plugins observe committed state changes of the billing ledger and the
// royalty gate. They run after the change is final and cannot veto it.
package plugin

import (
	"context"

	"github.com/xraph/tierpay/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDeposit is called after a user deposit settles.
type OnDeposit interface {
	Plugin
	OnDeposit(ctx context.Context, e *event.Event) error
}

// OnUsageApplied is called after usage is billed, zero-cost calls included.
type OnUsageApplied interface {
	Plugin
	OnUsageApplied(ctx context.Context, e *event.Event) error
}

// OnWithdrawal is called after unused funds, provider earnings or accrued
// royalty leave the reserve.
type OnWithdrawal interface {
	Plugin
	OnWithdrawal(ctx context.Context, e *event.Event) error
}

// OnProviderChanged is called when a provider registers, reprices or leaves.
type OnProviderChanged interface {
	Plugin
	OnProviderChanged(ctx context.Context, e *event.Event) error
}

// OnConfigChanged is called when platform or gate configuration changes.
type OnConfigChanged interface {
	Plugin
	OnConfigChanged(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Royalty hooks
// ──────────────────────────────────────────────────

// OnRoyaltyCharged is called after a transfer fee is collected and split.
type OnRoyaltyCharged interface {
	Plugin
	OnRoyaltyCharged(ctx context.Context, e *event.Event) error
}

// OnRoyaltyExempted is called when a transfer passes without a fee.
type OnRoyaltyExempted interface {
	Plugin
	OnRoyaltyExempted(ctx context.Context, e *event.Event) error
}

// OnRoyaltyTokenChanged is called when a token's royalty owner or price changes.
type OnRoyaltyTokenChanged interface {
	Plugin
	OnRoyaltyTokenChanged(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Catch-all
// ──────────────────────────────────────────────────

// OnEvent receives every journal event, after the typed hooks.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, e *event.Event) error
}
