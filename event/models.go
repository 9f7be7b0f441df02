// Package event is the append-only journal of state changes made by the
// billing ledger and the royalty gate.
package event

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/id"
	"github.com/xraph/tierpay/types"
)

// Kind names what happened.
type Kind string

const (
	KindDeposit              Kind = "deposit.made"
	KindUsageApplied         Kind = "usage.applied"
	KindUnusedWithdrawn      Kind = "unused.withdrawn"
	KindProviderWithdrawn    Kind = "provider.withdrawn"
	KindRoyaltyWithdrawn     Kind = "royalty.withdrawn"
	KindProviderRegistered   Kind = "provider.registered"
	KindProviderTiersSet     Kind = "provider.tiers_set"
	KindProviderUnregistered Kind = "provider.unregistered"
	KindConfigChanged        Kind = "config.changed"
	KindRoyaltyCharged       Kind = "royalty.charged"
	KindRoyaltyExempted      Kind = "royalty.exempted"
	KindRoyaltyOwnerChanged  Kind = "royalty.owner_changed"
	KindRoyaltyPriceChanged  Kind = "royalty.price_changed"
	KindRoyaltyConfigChanged Kind = "royalty.config_changed"
)

// LedgerKinds returns the kinds the billing ledger writes.
func LedgerKinds() []Kind {
	return []Kind{
		KindDeposit, KindUsageApplied, KindUnusedWithdrawn, KindProviderWithdrawn,
		KindRoyaltyWithdrawn, KindProviderRegistered, KindProviderTiersSet,
		KindProviderUnregistered, KindConfigChanged,
	}
}

// GateKinds returns the kinds the royalty gate writes.
func GateKinds() []Kind {
	return []Kind{
		KindRoyaltyCharged, KindRoyaltyExempted, KindRoyaltyOwnerChanged,
		KindRoyaltyPriceChanged, KindRoyaltyConfigChanged,
	}
}

// Scope restricts o to kinds. ok is false when o already asks for a kind
// outside them, in which case nothing can match.
func (o ListOpts) Scope(kinds []Kind) (scoped ListOpts, ok bool) {
	if o.Kind != "" && !slices.Contains(kinds, o.Kind) {
		return o, false
	}
	o.Kinds = kinds
	return o, true
}

// Event is one journal entry. Account is the primary party (user, provider,
// receiver or NFT sender); Counterparty is the other side when there is one.
type Event struct {
	ID           id.EventID        `json:"id"`
	Kind         Kind              `json:"kind"`
	Account      common.Address    `json:"account"`
	Counterparty common.Address    `json:"counterparty,omitempty"`
	Token        common.Address    `json:"token,omitempty"`
	TokenID      uint64            `json:"token_id,omitempty"`
	Units        uint64            `json:"units,omitempty"`
	Amount       *uint256.Int      `json:"amount"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// New returns an event of kind for account stamped at now.
func New(kind Kind, account common.Address, now time.Time) *Event {
	return &Event{
		ID:        id.NewEventID(),
		Kind:      kind,
		Account:   account,
		Amount:    types.Zero(),
		Timestamp: now.UTC(),
	}
}

// With sets an attribute and returns e.
func (e *Event) With(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Amount = types.Clone(e.Amount)
	c.Attributes = maps.Clone(e.Attributes)
	return &c
}

// ListOpts filters journal queries. Results are newest first.
type ListOpts struct {
	Kind Kind
	// Kinds, when non-empty, keeps only events of one of these kinds.
	Kinds   []Kind
	Account common.Address
	TokenID uint64
	Since   time.Time
	Limit   int
	Offset  int
}

// Matches reports whether e passes every set filter.
func (o ListOpts) Matches(e *Event) bool {
	if o.Kind != "" && e.Kind != o.Kind {
		return false
	}
	if len(o.Kinds) > 0 && !slices.Contains(o.Kinds, e.Kind) {
		return false
	}
	if o.Account != (common.Address{}) && e.Account != o.Account && e.Counterparty != o.Account {
		return false
	}
	if o.TokenID != 0 && e.TokenID != o.TokenID {
		return false
	}
	if !o.Since.IsZero() && e.Timestamp.Before(o.Since) {
		return false
	}
	return true
}

// Store persists the journal.
type Store interface {
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}
