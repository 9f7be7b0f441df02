// Package audithook bridges tierpay journal events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnDeposit             = (*Extension)(nil)
	_ plugin.OnUsageApplied        = (*Extension)(nil)
	_ plugin.OnWithdrawal          = (*Extension)(nil)
	_ plugin.OnProviderChanged     = (*Extension)(nil)
	_ plugin.OnConfigChanged       = (*Extension)(nil)
	_ plugin.OnRoyaltyCharged      = (*Extension)(nil)
	_ plugin.OnRoyaltyExempted     = (*Extension)(nil)
	_ plugin.OnRoyaltyTokenChanged = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges journal events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDeposit implements plugin.OnDeposit.
func (e *Extension) OnDeposit(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionDeposit, SeverityInfo, OutcomeSuccess,
		ResourceAccount, evt.Account.Hex(), CategoryPayment, evt,
		"amount", evt.Amount.Dec(),
		"token", evt.Token.Hex(),
	)
}

// OnUsageApplied implements plugin.OnUsageApplied.
func (e *Extension) OnUsageApplied(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionUsageApplied, SeverityInfo, OutcomeSuccess,
		ResourceAccount, evt.Account.Hex(), CategoryBilling, evt,
		"provider", evt.Counterparty.Hex(),
		"units", evt.Units,
		"cost", evt.Amount.Dec(),
	)
}

// OnWithdrawal implements plugin.OnWithdrawal.
func (e *Extension) OnWithdrawal(ctx context.Context, evt *event.Event) error {
	var action, resource string
	switch evt.Kind {
	case event.KindProviderWithdrawn:
		action, resource = ActionProviderWithdrawn, ResourceProvider
	case event.KindRoyaltyWithdrawn:
		action, resource = ActionRoyaltyWithdrawn, ResourcePlatform
	default:
		action, resource = ActionUnusedWithdrawn, ResourceAccount
	}

	// A settlement that returned nothing is still recorded.
	outcome := OutcomeSuccess
	if evt.Amount.IsZero() {
		outcome = OutcomePartial
	}
	return e.record(ctx, action, SeverityInfo, outcome,
		resource, evt.Account.Hex(), CategoryPayment, evt,
		"amount", evt.Amount.Dec(),
	)
}

// OnProviderChanged implements plugin.OnProviderChanged.
func (e *Extension) OnProviderChanged(ctx context.Context, evt *event.Event) error {
	action := ActionProviderRegistered
	severity := SeverityInfo
	switch evt.Kind {
	case event.KindProviderTiersSet:
		action = ActionProviderRepriced
	case event.KindProviderUnregistered:
		action = ActionProviderUnregistered
		severity = SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceProvider, evt.Account.Hex(), CategoryBilling, evt,
	)
}

// OnConfigChanged implements plugin.OnConfigChanged.
func (e *Extension) OnConfigChanged(ctx context.Context, evt *event.Event) error {
	action, resource := ActionPlatformConfigured, ResourcePlatform
	if evt.Kind == event.KindRoyaltyConfigChanged {
		action, resource = ActionGateConfigured, ResourceGate
	}
	return e.record(ctx, action, SeverityWarning, OutcomeSuccess,
		resource, evt.Attributes["key"], CategoryAdmin, evt,
		"caller", evt.Account.Hex(),
	)
}

// ──────────────────────────────────────────────────
// Royalty hooks
// ──────────────────────────────────────────────────

// OnRoyaltyCharged implements plugin.OnRoyaltyCharged.
func (e *Extension) OnRoyaltyCharged(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionRoyaltyCharged, SeverityInfo, OutcomeSuccess,
		ResourceToken, tokenID(evt), CategoryRoyalty, evt,
		"from", evt.Account.Hex(),
		"to", evt.Counterparty.Hex(),
		"amount", evt.Amount.Dec(),
	)
}

// OnRoyaltyExempted implements plugin.OnRoyaltyExempted.
func (e *Extension) OnRoyaltyExempted(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionRoyaltyExempted, SeverityInfo, OutcomeSuccess,
		ResourceToken, tokenID(evt), CategoryRoyalty, evt,
		"from", evt.Account.Hex(),
		"to", evt.Counterparty.Hex(),
	)
}

// OnRoyaltyTokenChanged implements plugin.OnRoyaltyTokenChanged.
func (e *Extension) OnRoyaltyTokenChanged(ctx context.Context, evt *event.Event) error {
	if evt.Kind == event.KindRoyaltyOwnerChanged {
		return e.record(ctx, ActionRoyaltyOwnerChanged, SeverityWarning, OutcomeSuccess,
			ResourceToken, tokenID(evt), CategoryRoyalty, evt,
			"owner", evt.Account.Hex(),
			"previous_owner", evt.Counterparty.Hex(),
		)
	}
	return e.record(ctx, ActionRoyaltyPriceChanged, SeverityInfo, OutcomeSuccess,
		ResourceToken, tokenID(evt), CategoryRoyalty, evt,
		"royalty_wei", evt.Amount.Dec(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func tokenID(evt *event.Event) string {
	return strconv.FormatUint(evt.TokenID, 10)
}

// record builds and sends an audit event if the action is enabled. The
// journal event's attributes are carried into the metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	evt *event.Event,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+len(evt.Attributes)+1)
	for k, v := range evt.Attributes {
		meta[k] = v
	}
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	meta["event_id"] = evt.ID.String()

	audit := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}

	if recErr := e.recorder.Record(ctx, audit); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
