package audithook

// Action constants for audit events.
const (
	// Billing actions
	ActionDeposit              = "deposit.made"
	ActionUsageApplied         = "usage.applied"
	ActionUnusedWithdrawn      = "unused.withdrawn"
	ActionProviderWithdrawn    = "provider.withdrawn"
	ActionRoyaltyWithdrawn     = "royalty.withdrawn"
	ActionPlatformConfigured   = "platform.configured"
	ActionProviderRegistered   = "provider.registered"
	ActionProviderRepriced     = "provider.repriced"
	ActionProviderUnregistered = "provider.unregistered"

	// Royalty actions
	ActionRoyaltyCharged      = "royalty.charged"
	ActionRoyaltyExempted     = "royalty.exempted"
	ActionRoyaltyOwnerChanged = "royalty.owner_changed"
	ActionRoyaltyPriceChanged = "royalty.price_changed"
	ActionGateConfigured      = "gate.configured"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceProvider = "provider"
	ResourcePlatform = "platform"
	ResourceToken    = "token"
	ResourceGate     = "gate"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryPayment = "payment"
	CategoryRoyalty = "royalty"
	CategoryAdmin   = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
