package mongo

import (
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

// singletonID keys the platform and royalty config documents.
const singletonID = 1

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:tierpay_accounts"`

	User           string    `grove:"user_addr,pk"     bson:"_id"`
	TotalDeposited string    `grove:"total_deposited"  bson:"total_deposited"`
	TotalUsed      string    `grove:"total_used"       bson:"total_used"`
	LastDepositAt  time.Time `grove:"last_deposit_at"  bson:"last_deposit_at"`
	CreatedAt      time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		User:           a.User.Hex(),
		TotalDeposited: types.String(a.TotalDeposited),
		TotalUsed:      types.String(a.TotalUsed),
		LastDepositAt:  a.LastDepositAt.UTC(),
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	deposited, err := types.ParseAmount(m.TotalDeposited)
	if err != nil {
		return nil, fmt.Errorf("account %s total_deposited: %w", m.User, err)
	}
	used, err := types.ParseAmount(m.TotalUsed)
	if err != nil {
		return nil, fmt.Errorf("account %s total_used: %w", m.User, err)
	}
	return &account.Account{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		User:           common.HexToAddress(m.User),
		TotalDeposited: deposited,
		TotalUsed:      used,
		LastDepositAt:  m.LastDepositAt.UTC(),
	}, nil
}

type usageModel struct {
	grove.BaseModel `grove:"table:tierpay_usage"`

	ID        string    `grove:"id,pk"          bson:"_id"`
	User      string    `grove:"user_addr"      bson:"user_addr"`
	Provider  string    `grove:"provider_addr"  bson:"provider_addr"`
	Units     int64     `grove:"units"          bson:"units"`
	CreatedAt time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"     bson:"updated_at"`
}

// usageKey is the document id of a (user, provider) counter.
func usageKey(user, prov common.Address) string {
	return user.Hex() + "/" + prov.Hex()
}

func toUsageModel(u *account.Usage) *usageModel {
	return &usageModel{
		ID:        usageKey(u.User, u.Provider),
		User:      u.User.Hex(),
		Provider:  u.Provider.Hex(),
		Units:     int64(u.Units), //nolint:gosec // lossless round trip
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func fromUsageModel(m *usageModel) *account.Usage {
	return &account.Usage{
		Entity:   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		User:     common.HexToAddress(m.User),
		Provider: common.HexToAddress(m.Provider),
		Units:    uint64(m.Units), //nolint:gosec // lossless round trip
	}
}

// ==================== Provider models ====================

type providerModel struct {
	grove.BaseModel `grove:"table:tierpay_providers"`

	Address      string      `grove:"address,pk"     bson:"_id"`
	Registered   bool        `grove:"registered"     bson:"registered"`
	RoyaltyBps   int64       `grove:"royalty_bps"    bson:"royalty_bps"`
	FallbackRate string      `grove:"fallback_rate"  bson:"fallback_rate"`
	Balance      string      `grove:"balance"        bson:"balance"`
	Tiers        []tierModel `grove:"tiers"          bson:"tiers"`
	CreatedAt    time.Time   `grove:"created_at"     bson:"created_at"`
	UpdatedAt    time.Time   `grove:"updated_at"     bson:"updated_at"`
}

type tierModel struct {
	Threshold int64  `bson:"threshold"`
	Rate      string `bson:"rate"`
}

func toProviderModel(p *provider.Provider) *providerModel {
	tiers := make([]tierModel, len(p.Tiers))
	for i, t := range p.Tiers {
		tiers[i] = tierModel{
			Threshold: int64(t.Threshold), //nolint:gosec // lossless round trip
			Rate:      types.String(t.Rate),
		}
	}
	return &providerModel{
		Address:      p.Address.Hex(),
		Registered:   p.Registered,
		RoyaltyBps:   int64(p.RoyaltyBps), //nolint:gosec // lossless round trip
		FallbackRate: types.String(p.FallbackRate),
		Balance:      types.String(p.Balance),
		Tiers:        tiers,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func fromProviderModel(m *providerModel) (*provider.Provider, error) {
	fallback, err := types.ParseAmount(m.FallbackRate)
	if err != nil {
		return nil, fmt.Errorf("provider %s fallback_rate: %w", m.Address, err)
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("provider %s balance: %w", m.Address, err)
	}
	var tiers provider.Tiers
	if len(m.Tiers) > 0 {
		tiers = make(provider.Tiers, len(m.Tiers))
		for i, t := range m.Tiers {
			rate, err := types.ParseAmount(t.Rate)
			if err != nil {
				return nil, fmt.Errorf("provider %s tier %d: %w", m.Address, i, err)
			}
			tiers[i] = provider.Tier{Threshold: uint64(t.Threshold), Rate: rate} //nolint:gosec // lossless round trip
		}
	}
	return &provider.Provider{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Address:      common.HexToAddress(m.Address),
		Registered:   m.Registered,
		RoyaltyBps:   uint64(m.RoyaltyBps), //nolint:gosec // lossless round trip
		FallbackRate: fallback,
		Balance:      balance,
		Tiers:        tiers,
	}, nil
}

// ==================== Platform models ====================

type platformModel struct {
	grove.BaseModel `grove:"table:tierpay_platform"`

	ID                  int       `grove:"id,pk"                 bson:"_id"`
	SettlementToken     string    `grove:"settlement_token"      bson:"settlement_token"`
	LockPeriod          int64     `grove:"lock_period_ns"        bson:"lock_period_ns"`
	DefaultRoyaltyBps   int64     `grove:"default_royalty_bps"   bson:"default_royalty_bps"`
	RoyaltyReceiver     string    `grove:"royalty_receiver"      bson:"royalty_receiver"`
	DiscountBps         int64     `grove:"discount_bps"          bson:"discount_bps"`
	DiscountCollections []string  `grove:"discount_collections"  bson:"discount_collections"`
	UsageOracle         string    `grove:"usage_oracle"          bson:"usage_oracle"`
	RoyaltyAccrued      string    `grove:"royalty_accrued"       bson:"royalty_accrued"`
	CreatedAt           time.Time `grove:"created_at"            bson:"created_at"`
	UpdatedAt           time.Time `grove:"updated_at"            bson:"updated_at"`
}

func toPlatformModel(s *platform.State) *platformModel {
	collections := make([]string, len(s.DiscountCollections))
	for i, c := range s.DiscountCollections {
		collections[i] = c.Hex()
	}
	return &platformModel{
		ID:                  singletonID,
		SettlementToken:     s.SettlementToken.Hex(),
		LockPeriod:          int64(s.LockPeriod),
		DefaultRoyaltyBps:   int64(s.DefaultRoyaltyBps), //nolint:gosec // lossless round trip
		RoyaltyReceiver:     s.RoyaltyReceiver.Hex(),
		DiscountBps:         int64(s.DiscountBps), //nolint:gosec // lossless round trip
		DiscountCollections: collections,
		UsageOracle:         s.UsageOracle.Hex(),
		RoyaltyAccrued:      types.String(s.RoyaltyAccrued),
		CreatedAt:           s.CreatedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
}

func fromPlatformModel(m *platformModel) (*platform.State, error) {
	accrued, err := types.ParseAmount(m.RoyaltyAccrued)
	if err != nil {
		return nil, fmt.Errorf("platform royalty_accrued: %w", err)
	}
	var collections []common.Address
	for _, h := range m.DiscountCollections {
		collections = append(collections, common.HexToAddress(h))
	}
	return &platform.State{
		Entity: types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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

type royaltyTokenModel struct {
	grove.BaseModel `grove:"table:tierpay_royalty_tokens"`

	TokenID      int64     `grove:"token_id,pk"    bson:"_id"`
	RoyaltyOwner string    `grove:"royalty_owner"  bson:"royalty_owner"`
	RoyaltyWei   string    `grove:"royalty_wei"    bson:"royalty_wei"`
	MintedOwner  string    `grove:"minted_owner"   bson:"minted_owner"`
	CreatedAt    time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"     bson:"updated_at"`
}

// tokenKey casts losslessly. Ids from 2^63 up sort and range-filter as
// negative int64 values, the same limit the SQL backends have.
func tokenKey(tokenID uint64) int64 { return int64(tokenID) } //nolint:gosec // lossless round trip

func toRoyaltyTokenModel(t *royalty.Token) *royaltyTokenModel {
	return &royaltyTokenModel{
		TokenID:      tokenKey(t.TokenID),
		RoyaltyOwner: t.RoyaltyOwner.Hex(),
		RoyaltyWei:   types.String(t.RoyaltyWei),
		MintedOwner:  t.MintedOwner.Hex(),
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

func fromRoyaltyTokenModel(m *royaltyTokenModel) (*royalty.Token, error) {
	wei, err := types.ParseAmount(m.RoyaltyWei)
	if err != nil {
		return nil, fmt.Errorf("royalty token %d royalty_wei: %w", m.TokenID, err)
	}
	return &royalty.Token{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		TokenID:      uint64(m.TokenID), //nolint:gosec // lossless round trip
		RoyaltyOwner: common.HexToAddress(m.RoyaltyOwner),
		RoyaltyWei:   wei,
		MintedOwner:  common.HexToAddress(m.MintedOwner),
	}, nil
}

type royaltyConfigModel struct {
	grove.BaseModel `grove:"table:tierpay_royalty_config"`

	ID            int           `grove:"id,pk"           bson:"_id"`
	Split         splitModel    `grove:"split"           bson:"split"`
	PartnerWallet string        `grove:"partner_wallet"  bson:"partner_wallet"`
	Toggles       togglesModel  `grove:"toggles"         bson:"toggles"`
	Addresses     gateAddrModel `grove:"addresses"       bson:"addresses"`
	CreatedAt     time.Time     `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time     `grove:"updated_at"      bson:"updated_at"`
}

type splitModel struct {
	ManufacturerBP int64 `bson:"manufacturer_bp"`
	PartnerBP      int64 `bson:"partner_bp"`
	CreatorBP      int64 `bson:"creator_bp"`
	Denominator    int64 `bson:"denominator"`
}

type togglesModel struct {
	Enforcement       bool `bson:"enforcement"`
	FounderPassExempt bool `bson:"founder_pass_exempt"`
	MintedOwnerExempt bool `bson:"minted_owner_exempt"`
	TreasuryFee       bool `bson:"treasury_fee"`
}

type gateAddrModel struct {
	SettlementToken string `bson:"settlement_token"`
	Pair            string `bson:"pair"`
	Treasury        string `bson:"treasury"`
	FounderPass     string `bson:"founder_pass"`
}

func toRoyaltyConfigModel(c *royalty.Config) *royaltyConfigModel {
	return &royaltyConfigModel{
		ID: singletonID,
		Split: splitModel{
			ManufacturerBP: int64(c.ManufacturerBP), //nolint:gosec // lossless round trip
			PartnerBP:      int64(c.PartnerBP),      //nolint:gosec // lossless round trip
			CreatorBP:      int64(c.CreatorBP),      //nolint:gosec // lossless round trip
			Denominator:    int64(c.Denominator),    //nolint:gosec // lossless round trip
		},
		PartnerWallet: c.PartnerWallet.Hex(),
		Toggles: togglesModel{
			Enforcement:       c.EnforcementEnabled,
			FounderPassExempt: c.FounderPassExemptEnabled,
			MintedOwnerExempt: c.MintedOwnerExemptEnabled,
			TreasuryFee:       c.TreasuryFeeEnabled,
		},
		Addresses: gateAddrModel{
			SettlementToken: c.SettlementToken.Hex(),
			Pair:            c.Pair.Hex(),
			Treasury:        c.Treasury.Hex(),
			FounderPass:     c.FounderPass.Hex(),
		},
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func fromRoyaltyConfigModel(m *royaltyConfigModel) *royalty.Config {
	return &royalty.Config{
		Entity:                   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ManufacturerBP:           uint64(m.Split.ManufacturerBP), //nolint:gosec // lossless round trip
		PartnerBP:                uint64(m.Split.PartnerBP),      //nolint:gosec // lossless round trip
		CreatorBP:                uint64(m.Split.CreatorBP),      //nolint:gosec // lossless round trip
		Denominator:              uint64(m.Split.Denominator),    //nolint:gosec // lossless round trip
		PartnerWallet:            common.HexToAddress(m.PartnerWallet),
		EnforcementEnabled:       m.Toggles.Enforcement,
		FounderPassExemptEnabled: m.Toggles.FounderPassExempt,
		MintedOwnerExemptEnabled: m.Toggles.MintedOwnerExempt,
		TreasuryFeeEnabled:       m.Toggles.TreasuryFee,
		SettlementToken:          common.HexToAddress(m.Addresses.SettlementToken),
		Pair:                     common.HexToAddress(m.Addresses.Pair),
		Treasury:                 common.HexToAddress(m.Addresses.Treasury),
		FounderPass:              common.HexToAddress(m.Addresses.FounderPass),
	}
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:tierpay_events"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	Kind         string            `grove:"kind"          bson:"kind"`
	Account      string            `grove:"account"       bson:"account"`
	Counterparty string            `grove:"counterparty"  bson:"counterparty"`
	Token        string            `grove:"token"         bson:"token"`
	TokenID      int64             `grove:"token_id"      bson:"token_id"`
	Units        int64             `grove:"units"         bson:"units"`
	Amount       string            `grove:"amount"        bson:"amount"`
	Attributes   map[string]string `grove:"attributes"    bson:"attributes,omitempty"`
	Timestamp    time.Time         `grove:"timestamp"     bson:"timestamp"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:           e.ID.String(),
		Kind:         string(e.Kind),
		Account:      e.Account.Hex(),
		Counterparty: e.Counterparty.Hex(),
		Token:        e.Token.Hex(),
		TokenID:      tokenKey(e.TokenID),
		Units:        int64(e.Units), //nolint:gosec // lossless round trip
		Amount:       types.String(e.Amount),
		Attributes:   e.Attributes,
		Timestamp:    e.Timestamp.UTC(),
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("event %s amount: %w", m.ID, err)
	}
	attrs := m.Attributes
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
