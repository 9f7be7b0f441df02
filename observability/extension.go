// Package observability provides a metrics extension for tierpay that records
// journal event counts and amounts through a MetricFactory.
package observability

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/plugin"
	"github.com/xraph/tierpay/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnDeposit             = (*MetricsExtension)(nil)
	_ plugin.OnUsageApplied        = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawal          = (*MetricsExtension)(nil)
	_ plugin.OnProviderChanged     = (*MetricsExtension)(nil)
	_ plugin.OnConfigChanged       = (*MetricsExtension)(nil)
	_ plugin.OnRoyaltyCharged      = (*MetricsExtension)(nil)
	_ plugin.OnRoyaltyExempted     = (*MetricsExtension)(nil)
	_ plugin.OnRoyaltyTokenChanged = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide billing and royalty metrics.
// Register it as a plugin on either engine.
type MetricsExtension struct {
	factory MetricFactory

	// Billing metrics
	Deposits          Counter
	DepositAmount     Histogram
	UsageApplied      Counter
	UsageFree         Counter
	UsageUnits        Histogram
	UsageCost         Histogram
	UnusedWithdrawals Counter
	ProviderPayouts   Counter
	RoyaltyPayouts    Counter
	WithdrawnAmount   Histogram

	// Admin metrics
	ProviderChanges Counter
	ConfigChanges   Counter

	// Royalty metrics
	RoyaltyCharged      Counter
	RoyaltyExempted     Counter
	RoyaltyAmount       Histogram
	RoyaltyTokenChanges Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Deposits:          factory.Counter("tierpay.deposit.count"),
		DepositAmount:     factory.Histogram("tierpay.deposit.amount"),
		UsageApplied:      factory.Counter("tierpay.usage.applied"),
		UsageFree:         factory.Counter("tierpay.usage.free"),
		UsageUnits:        factory.Histogram("tierpay.usage.units"),
		UsageCost:         factory.Histogram("tierpay.usage.cost"),
		UnusedWithdrawals: factory.Counter("tierpay.withdraw.unused"),
		ProviderPayouts:   factory.Counter("tierpay.withdraw.provider"),
		RoyaltyPayouts:    factory.Counter("tierpay.withdraw.royalty"),
		WithdrawnAmount:   factory.Histogram("tierpay.withdraw.amount"),

		ProviderChanges: factory.Counter("tierpay.provider.changes"),
		ConfigChanges:   factory.Counter("tierpay.config.changes"),

		RoyaltyCharged:      factory.Counter("tierpay.royalty.charged"),
		RoyaltyExempted:     factory.Counter("tierpay.royalty.exempted"),
		RoyaltyAmount:       factory.Histogram("tierpay.royalty.amount"),
		RoyaltyTokenChanges: factory.Counter("tierpay.royalty.token_changes"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDeposit implements plugin.OnDeposit.
func (m *MetricsExtension) OnDeposit(_ context.Context, e *event.Event) error {
	m.Deposits.Inc()
	m.DepositAmount.Observe(toFloat(e.Amount))
	return nil
}

// OnUsageApplied implements plugin.OnUsageApplied.
func (m *MetricsExtension) OnUsageApplied(_ context.Context, e *event.Event) error {
	if e.Units == 0 {
		m.UsageFree.Inc()
		return nil
	}
	m.UsageApplied.Inc()
	m.UsageUnits.Observe(float64(e.Units))
	m.UsageCost.Observe(toFloat(e.Amount))
	return nil
}

// OnWithdrawal implements plugin.OnWithdrawal.
func (m *MetricsExtension) OnWithdrawal(_ context.Context, e *event.Event) error {
	switch e.Kind {
	case event.KindProviderWithdrawn:
		m.ProviderPayouts.Inc()
	case event.KindRoyaltyWithdrawn:
		m.RoyaltyPayouts.Inc()
	default:
		m.UnusedWithdrawals.Inc()
	}
	m.WithdrawnAmount.Observe(toFloat(e.Amount))
	return nil
}

// OnProviderChanged implements plugin.OnProviderChanged.
func (m *MetricsExtension) OnProviderChanged(_ context.Context, _ *event.Event) error {
	m.ProviderChanges.Inc()
	return nil
}

// OnConfigChanged implements plugin.OnConfigChanged.
func (m *MetricsExtension) OnConfigChanged(_ context.Context, _ *event.Event) error {
	m.ConfigChanges.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Royalty hooks
// ──────────────────────────────────────────────────

// OnRoyaltyCharged implements plugin.OnRoyaltyCharged.
func (m *MetricsExtension) OnRoyaltyCharged(_ context.Context, e *event.Event) error {
	m.RoyaltyCharged.Inc()
	m.RoyaltyAmount.Observe(toFloat(e.Amount))
	return nil
}

// OnRoyaltyExempted implements plugin.OnRoyaltyExempted.
func (m *MetricsExtension) OnRoyaltyExempted(_ context.Context, _ *event.Event) error {
	m.RoyaltyExempted.Inc()
	return nil
}

// OnRoyaltyTokenChanged implements plugin.OnRoyaltyTokenChanged.
func (m *MetricsExtension) OnRoyaltyTokenChanged(_ context.Context, _ *event.Event) error {
	m.RoyaltyTokenChanges.Inc()
	return nil
}

// toFloat converts an amount for histogram observation. Precision beyond
// float64 is lost.
func toFloat(a *uint256.Int) float64 {
	if types.IsZero(a) {
		return 0
	}
	f, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	return f
}
