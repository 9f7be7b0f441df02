// Package sqlmodel holds the Grove row models shared by the SQL backends.
// Amounts are stored as base-10 TEXT and addresses as checksummed hex.
// Unsigned counters are stored as BIGINT through a lossless int64 cast;
// values from 2^63 up read back intact but compare and sort as negative
// numbers in SQL, so the HTTP API rejects them.
package sqlmodel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/id"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/types"
)

// SingletonID is the primary key of the platform and royalty config rows.
const SingletonID = 1

// ==================== Account models ====================

// Account is a row of tierpay_accounts.
type Account struct {
	grove.BaseModel `grove:"table:tierpay_accounts"`

	User           string    `grove:"user_addr,pk"`
	TotalDeposited string    `grove:"total_deposited"`
	TotalUsed      string    `grove:"total_used"`
	LastDepositAt  time.Time `grove:"last_deposit_at"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

// ToAccount converts a domain account.
func ToAccount(a *account.Account) *Account {
	return &Account{
		User:           a.User.Hex(),
		TotalDeposited: types.String(a.TotalDeposited),
		TotalUsed:      types.String(a.TotalUsed),
		LastDepositAt:  a.LastDepositAt.UTC(),
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

// FromAccount converts a row.
func FromAccount(m *Account) (*account.Account, error) {
	deposited, err := types.ParseAmount(m.TotalDeposited)
	if err != nil {
		return nil, fmt.Errorf("account %s total_deposited: %w", m.User, err)
	}
	used, err := types.ParseAmount(m.TotalUsed)
	if err != nil {
		return nil, fmt.Errorf("account %s total_used: %w", m.User, err)
	}
	return &account.Account{
		Entity:         entity(m.CreatedAt, m.UpdatedAt),
		User:           common.HexToAddress(m.User),
		TotalDeposited: deposited,
		TotalUsed:      used,
		LastDepositAt:  m.LastDepositAt.UTC(),
	}, nil
}

// Usage is a row of tierpay_usage, one per (user, provider) pair.
type Usage struct {
	grove.BaseModel `grove:"table:tierpay_usage"`

	User      string    `grove:"user_addr,pk"`
	Provider  string    `grove:"provider_addr,pk"`
	Units     int64     `grove:"units"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// ToUsage converts a domain usage counter.
func ToUsage(u *account.Usage) *Usage {
	return &Usage{
		User:      u.User.Hex(),
		Provider:  u.Provider.Hex(),
		Units:     int64(u.Units), //nolint:gosec // lossless round trip
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

// FromUsage converts a row.
func FromUsage(m *Usage) *account.Usage {
	return &account.Usage{
		Entity:   entity(m.CreatedAt, m.UpdatedAt),
		User:     common.HexToAddress(m.User),
		Provider: common.HexToAddress(m.Provider),
		Units:    uint64(m.Units), //nolint:gosec // lossless round trip
	}
}

// ==================== Provider models ====================

// Provider is a row of tierpay_providers.
type Provider struct {
	grove.BaseModel `grove:"table:tierpay_providers"`

	Address      string          `grove:"address,pk"`
	Registered   bool            `grove:"registered"`
	RoyaltyBps   int64           `grove:"royalty_bps"`
	FallbackRate string          `grove:"fallback_rate"`
	Balance      string          `grove:"balance"`
	Tiers        json.RawMessage `grove:"tiers,type:jsonb"`
	CreatedAt    time.Time       `grove:"created_at"`
	UpdatedAt    time.Time       `grove:"updated_at"`
}

type tierRow struct {
	Threshold uint64 `json:"threshold"`
	Rate      string `json:"rate"`
}

// ToProvider converts a domain provider.
func ToProvider(p *provider.Provider) (*Provider, error) {
	rows := make([]tierRow, len(p.Tiers))
	for i, t := range p.Tiers {
		rows[i] = tierRow{Threshold: t.Threshold, Rate: types.String(t.Rate)}
	}
	tiers, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return &Provider{
		Address:      p.Address.Hex(),
		Registered:   p.Registered,
		RoyaltyBps:   int64(p.RoyaltyBps), //nolint:gosec // lossless round trip
		FallbackRate: types.String(p.FallbackRate),
		Balance:      types.String(p.Balance),
		Tiers:        tiers,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}, nil
}

// FromProvider converts a row.
func FromProvider(m *Provider) (*provider.Provider, error) {
	fallback, err := types.ParseAmount(m.FallbackRate)
	if err != nil {
		return nil, fmt.Errorf("provider %s fallback_rate: %w", m.Address, err)
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("provider %s balance: %w", m.Address, err)
	}

	var rows []tierRow
	if len(m.Tiers) > 0 {
		if err := json.Unmarshal(m.Tiers, &rows); err != nil {
			return nil, fmt.Errorf("provider %s tiers: %w", m.Address, err)
		}
	}
	var tiers provider.Tiers
	if len(rows) > 0 {
		tiers = make(provider.Tiers, len(rows))
		for i, r := range rows {
			rate, err := types.ParseAmount(r.Rate)
			if err != nil {
				return nil, fmt.Errorf("provider %s tier %d: %w", m.Address, i, err)
			}
			tiers[i] = provider.Tier{Threshold: r.Threshold, Rate: rate}
		}
	}

	return &provider.Provider{
		Entity:       entity(m.CreatedAt, m.UpdatedAt),
		Address:      common.HexToAddress(m.Address),
		Registered:   m.Registered,
		RoyaltyBps:   uint64(m.RoyaltyBps), //nolint:gosec // lossless round trip
		FallbackRate: fallback,
		Balance:      balance,
		Tiers:        tiers,
	}, nil
}

// ==================== Platform models ====================

// Platform is the single row of tierpay_platform.
type Platform struct {
	grove.BaseModel `grove:"table:tierpay_platform"`

	ID                  int             `grove:"id,pk"`
	SettlementToken     string          `grove:"settlement_token"`
	LockPeriod          int64           `grove:"lock_period_ns"`
	DefaultRoyaltyBps   int64           `grove:"default_royalty_bps"`
	RoyaltyReceiver     string          `grove:"royalty_receiver"`
	DiscountBps         int64           `grove:"discount_bps"`
	DiscountCollections json.RawMessage `grove:"discount_collections,type:jsonb"`
	UsageOracle         string          `grove:"usage_oracle"`
	RoyaltyAccrued      string          `grove:"royalty_accrued"`
	CreatedAt           time.Time       `grove:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"`
}

// ToPlatform converts the domain platform state.
func ToPlatform(s *platform.State) (*Platform, error) {
	collections := make([]string, len(s.DiscountCollections))
	for i, c := range s.DiscountCollections {
		collections[i] = c.Hex()
	}
	raw, err := json.Marshal(collections)
	if err != nil {
		return nil, err
	}
	return &Platform{
		ID:                  SingletonID,
		SettlementToken:     s.SettlementToken.Hex(),
		LockPeriod:          int64(s.LockPeriod),
		DefaultRoyaltyBps:   int64(s.DefaultRoyaltyBps), //nolint:gosec // lossless round trip
		RoyaltyReceiver:     s.RoyaltyReceiver.Hex(),
		DiscountBps:         int64(s.DiscountBps), //nolint:gosec // lossless round trip
		DiscountCollections: raw,
		UsageOracle:         s.UsageOracle.Hex(),
		RoyaltyAccrued:      types.String(s.RoyaltyAccrued),
		CreatedAt:           s.CreatedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}, nil
}

// FromPlatform converts the row.
func FromPlatform(m *Platform) (*platform.State, error) {
	accrued, err := types.ParseAmount(m.RoyaltyAccrued)
	if err != nil {
		return nil, fmt.Errorf("platform royalty_accrued: %w", err)
	}
	var hexes []string
	if len(m.DiscountCollections) > 0 {
		if err := json.Unmarshal(m.DiscountCollections, &hexes); err != nil {
			return nil, fmt.Errorf("platform discount_collections: %w", err)
		}
	}
	var collections []common.Address
	for _, h := range hexes {
		collections = append(collections, common.HexToAddress(h))
	}

	return &platform.State{
		Entity: entity(m.CreatedAt, m.UpdatedAt),
		Config: platform.Config{
			SettlementToken:     common.HexToAddress(m.SettlementToken),
			LockPeriod:          time.Duration(m.LockPeriod),
			DefaultRoyaltyBps:   uint64(m.DefaultRoyaltyBps), //nolint:gosec // lossless round trip
			RoyaltyReceiver:     common.HexToAddress(m.RoyaltyReceiver),
			DiscountBps:         uint64(m.DiscountBps), //nolint:gosec // lossless round trip
			DiscountCollections: collections,
			UsageOracle:         common.HexToAddress(m.UsageOracle),
		},
		RoyaltyAccrued: accrued,
	}, nil
}

// ==================== Royalty models ====================

// RoyaltyToken is a row of tierpay_royalty_tokens.
type RoyaltyToken struct {
	grove.BaseModel `grove:"table:tierpay_royalty_tokens"`

	TokenID      int64     `grove:"token_id,pk"`
	RoyaltyOwner string    `grove:"royalty_owner"`
	RoyaltyWei   string    `grove:"royalty_wei"`
	MintedOwner  string    `grove:"minted_owner"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

// ToRoyaltyToken converts a domain token record.
func ToRoyaltyToken(t *royalty.Token) *RoyaltyToken {
	return &RoyaltyToken{
		TokenID:      TokenKey(t.TokenID),
		RoyaltyOwner: t.RoyaltyOwner.Hex(),
		RoyaltyWei:   types.String(t.RoyaltyWei),
		MintedOwner:  t.MintedOwner.Hex(),
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

// FromRoyaltyToken converts a row.
func FromRoyaltyToken(m *RoyaltyToken) (*royalty.Token, error) {
	wei, err := types.ParseAmount(m.RoyaltyWei)
	if err != nil {
		return nil, fmt.Errorf("royalty token %d royalty_wei: %w", m.TokenID, err)
	}
	return &royalty.Token{
		Entity:       entity(m.CreatedAt, m.UpdatedAt),
		TokenID:      uint64(m.TokenID), //nolint:gosec // lossless round trip
		RoyaltyOwner: common.HexToAddress(m.RoyaltyOwner),
		RoyaltyWei:   wei,
		MintedOwner:  common.HexToAddress(m.MintedOwner),
	}, nil
}

// TokenKey is the stored form of a token id.
func TokenKey(tokenID uint64) int64 { return int64(tokenID) } //nolint:gosec // lossless round trip

// RoyaltyConfig is the single row of tierpay_royalty_config.
type RoyaltyConfig struct {
	grove.BaseModel `grove:"table:tierpay_royalty_config"`

	ID                       int       `grove:"id,pk"`
	ManufacturerBP           int64     `grove:"manufacturer_bp"`
	PartnerBP                int64     `grove:"partner_bp"`
	CreatorBP                int64     `grove:"creator_bp"`
	Denominator              int64     `grove:"denominator"`
	PartnerWallet            string    `grove:"partner_wallet"`
	EnforcementEnabled       bool      `grove:"enforcement_enabled"`
	FounderPassExemptEnabled bool      `grove:"founder_pass_exempt_enabled"`
	MintedOwnerExemptEnabled bool      `grove:"minted_owner_exempt_enabled"`
	TreasuryFeeEnabled       bool      `grove:"treasury_fee_enabled"`
	SettlementToken          string    `grove:"settlement_token"`
	Pair                     string    `grove:"pair"`
	Treasury                 string    `grove:"treasury"`
	FounderPass              string    `grove:"founder_pass"`
	CreatedAt                time.Time `grove:"created_at"`
	UpdatedAt                time.Time `grove:"updated_at"`
}

// ToRoyaltyConfig converts the domain gate configuration.
func ToRoyaltyConfig(c *royalty.Config) *RoyaltyConfig {
	return &RoyaltyConfig{
		ID:                       SingletonID,
		ManufacturerBP:           int64(c.ManufacturerBP), //nolint:gosec // lossless round trip
		PartnerBP:                int64(c.PartnerBP),      //nolint:gosec // lossless round trip
		CreatorBP:                int64(c.CreatorBP),      //nolint:gosec // lossless round trip
		Denominator:              int64(c.Denominator),    //nolint:gosec // lossless round trip
		PartnerWallet:            c.PartnerWallet.Hex(),
		EnforcementEnabled:       c.EnforcementEnabled,
		FounderPassExemptEnabled: c.FounderPassExemptEnabled,
		MintedOwnerExemptEnabled: c.MintedOwnerExemptEnabled,
		TreasuryFeeEnabled:       c.TreasuryFeeEnabled,
		SettlementToken:          c.SettlementToken.Hex(),
		Pair:                     c.Pair.Hex(),
		Treasury:                 c.Treasury.Hex(),
		FounderPass:              c.FounderPass.Hex(),
		CreatedAt:                c.CreatedAt.UTC(),
		UpdatedAt:                c.UpdatedAt.UTC(),
	}
}

// FromRoyaltyConfig converts the row.
func FromRoyaltyConfig(m *RoyaltyConfig) *royalty.Config {
	return &royalty.Config{
		Entity:                   entity(m.CreatedAt, m.UpdatedAt),
		ManufacturerBP:           uint64(m.ManufacturerBP), //nolint:gosec // lossless round trip
		PartnerBP:                uint64(m.PartnerBP),      //nolint:gosec // lossless round trip
		CreatorBP:                uint64(m.CreatorBP),      //nolint:gosec // lossless round trip
		Denominator:              uint64(m.Denominator),    //nolint:gosec // lossless round trip
		PartnerWallet:            common.HexToAddress(m.PartnerWallet),
		EnforcementEnabled:       m.EnforcementEnabled,
		FounderPassExemptEnabled: m.FounderPassExemptEnabled,
		MintedOwnerExemptEnabled: m.MintedOwnerExemptEnabled,
		TreasuryFeeEnabled:       m.TreasuryFeeEnabled,
		SettlementToken:          common.HexToAddress(m.SettlementToken),
		Pair:                     common.HexToAddress(m.Pair),
		Treasury:                 common.HexToAddress(m.Treasury),
		FounderPass:              common.HexToAddress(m.FounderPass),
	}
}

// ==================== Event models ====================

// Event is a row of tierpay_events.
type Event struct {
	grove.BaseModel `grove:"table:tierpay_events"`

	ID           string          `grove:"id,pk"`
	Kind         string          `grove:"kind"`
	Account      string          `grove:"account"`
	Counterparty string          `grove:"counterparty"`
	Token        string          `grove:"token"`
	TokenID      int64           `grove:"token_id"`
	Units        int64           `grove:"units"`
	Amount       string          `grove:"amount"`
	Attributes   json.RawMessage `grove:"attributes,type:jsonb"`
	Timestamp    time.Time       `grove:"timestamp"`
}

// ToEvent converts a journal event.
func ToEvent(e *event.Event) (*Event, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:           e.ID.String(),
		Kind:         string(e.Kind),
		Account:      e.Account.Hex(),
		Counterparty: e.Counterparty.Hex(),
		Token:        e.Token.Hex(),
		TokenID:      TokenKey(e.TokenID),
		Units:        int64(e.Units), //nolint:gosec // lossless round trip
		Amount:       types.String(e.Amount),
		Attributes:   attrs,
		Timestamp:    e.Timestamp.UTC(),
	}, nil
}

// FromEvent converts a row.
func FromEvent(m *Event) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("event %s amount: %w", m.ID, err)
	}
	var attrs map[string]string
	if len(m.Attributes) > 0 {
		if err := json.Unmarshal(m.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("event %s attributes: %w", m.ID, err)
		}
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	return &event.Event{
		ID:           eventID,
		Kind:         event.Kind(m.Kind),
		Account:      common.HexToAddress(m.Account),
		Counterparty: common.HexToAddress(m.Counterparty),
		Token:        common.HexToAddress(m.Token),
		TokenID:      uint64(m.TokenID), //nolint:gosec // lossless round trip
		Units:        uint64(m.Units),   //nolint:gosec // lossless round trip
		Amount:       amount,
		Attributes:   attrs,
		Timestamp:    m.Timestamp.UTC(),
	}, nil
}

// AddressKey is the stored form of an address.
func AddressKey(a common.Address) string { return a.Hex() }

func entity(created, updated time.Time) types.Entity {
	return types.Entity{CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}
}
