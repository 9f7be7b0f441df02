package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store"
)

// Collection name constants.
const (
	colAccounts      = "tierpay_accounts"
	colUsage         = "tierpay_usage"
	colProviders     = "tierpay_providers"
	colPlatform      = "tierpay_platform"
	colRoyaltyTokens = "tierpay_royalty_tokens"
	colRoyaltyConfig = "tierpay_royalty_config"
	colEvents        = "tierpay_events"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tierpay collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tierpay/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, user common.Address) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": user.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, user.Hex())
		}
		return nil, fmt.Errorf("tierpay/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.User}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":             m.User,
			"total_deposited": m.TotalDeposited,
			"total_used":      m.TotalUsed,
			"last_deposit_at": m.LastDepositAt,
			"created_at":      m.CreatedAt,
			"updated_at":      m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierpay/mongo: save account: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, user, prov common.Address) (*account.Usage, error) {
	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": usageKey(user, prov)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: usage %s/%s", store.ErrNotFound, user.Hex(), prov.Hex())
		}
		return nil, fmt.Errorf("tierpay/mongo: get usage: %w", err)
	}
	return fromUsageModel(&m), nil
}

func (s *Store) SaveUsage(ctx context.Context, u *account.Usage) error {
	m := toUsageModel(u)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":           m.ID,
			"user_addr":     m.User,
			"provider_addr": m.Provider,
			"units":         m.Units,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierpay/mongo: save usage: %w", err)
	}
	return nil
}

// ==================== Provider Store ====================

func (s *Store) GetProvider(ctx context.Context, addr common.Address) (*provider.Provider, error) {
	var m providerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": addr.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: provider %s", store.ErrNotFound, addr.Hex())
		}
		return nil, fmt.Errorf("tierpay/mongo: get provider: %w", err)
	}
	return fromProviderModel(&m)
}

func (s *Store) SaveProvider(ctx context.Context, p *provider.Provider) error {
	m := toProviderModel(p)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Address}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":           m.Address,
			"registered":    m.Registered,
			"royalty_bps":   m.RoyaltyBps,
			"fallback_rate": m.FallbackRate,
			"balance":       m.Balance,
			"tiers":         m.Tiers,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierpay/mongo: save provider: %w", err)
	}
	return nil
}

func (s *Store) ListProviders(ctx context.Context, opts provider.ListOpts) ([]*provider.Provider, error) {
	var models []providerModel

	filter := bson.M{}
	if opts.RegisteredOnly {
		filter["registered"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tierpay/mongo: list providers: %w", err)
	}

	result := make([]*provider.Provider, len(models))
	for i := range models {
		p, err := fromProviderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Platform Store ====================

func (s *Store) GetPlatform(ctx context.Context) (*platform.State, error) {
	var m platformModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": singletonID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: platform", store.ErrNotFound)
		}
		return nil, fmt.Errorf("tierpay/mongo: get platform: %w", err)
	}
	return fromPlatformModel(&m)
}

func (s *Store) SavePlatform(ctx context.Context, st *platform.State) error {
	m := toPlatformModel(st)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": singletonID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":                  singletonID,
			"settlement_token":     m.SettlementToken,
			"lock_period_ns":       m.LockPeriod,
			"default_royalty_bps":  m.DefaultRoyaltyBps,
			"royalty_receiver":     m.RoyaltyReceiver,
			"discount_bps":         m.DiscountBps,
			"discount_collections": m.DiscountCollections,
			"usage_oracle":         m.UsageOracle,
			"royalty_accrued":      m.RoyaltyAccrued,
			"created_at":           m.CreatedAt,
			"updated_at":           m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierpay/mongo: save platform: %w", err)
	}
	return nil
}

// ==================== Royalty Store ====================

func (s *Store) GetRoyaltyToken(ctx context.Context, tokenID uint64) (*royalty.Token, error) {
	var m royaltyTokenModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tokenKey(tokenID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: royalty token %d", store.ErrNotFound, tokenID)
		}
		return nil, fmt.Errorf("tierpay/mongo: get royalty token: %w", err)
	}
	return fromRoyaltyTokenModel(&m)
}

func (s *Store) SaveRoyaltyToken(ctx context.Context, t *royalty.Token) error {
	m := toRoyaltyTokenModel(t)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.TokenID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":           m.TokenID,
			"royalty_owner": m.RoyaltyOwner,
			"royalty_wei":   m.RoyaltyWei,
			"minted_owner":  m.MintedOwner,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierpay/mongo: save royalty token: %w", err)
	}
	return nil
}

func (s *Store) GetRoyaltyConfig(ctx context.Context) (*royalty.Config, error) {
	var m royaltyConfigModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": singletonID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: royalty config", store.ErrNotFound)
		}
		return nil, fmt.Errorf("tierpay/mongo: get royalty config: %w", err)
	}
	return fromRoyaltyConfigModel(&m), nil
}

func (s *Store) SaveRoyaltyConfig(ctx context.Context, c *royalty.Config) error {
	m := toRoyaltyConfigModel(c)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": singletonID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":            singletonID,
			"split":          m.Split,
			"partner_wallet": m.PartnerWallet,
			"toggles":        m.Toggles,
			"addresses":      m.Addresses,
			"created_at":     m.CreatedAt,
			"updated_at":     m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tierpay/mongo: save royalty config: %w", err)
	}
	return nil
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	m := toEventModel(e)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tierpay/mongo: append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{}
	if len(opts.Kinds) > 0 {
		kinds := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		filter["kind"] = bson.M{"$in": kinds}
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.Account != (common.Address{}) {
		hex := opts.Account.Hex()
		filter["$or"] = bson.A{
			bson.M{"account": hex},
			bson.M{"counterparty": hex},
		}
	}
	if opts.TokenID != 0 {
		filter["token_id"] = tokenKey(opts.TokenID)
	}
	if !opts.Since.IsZero() {
		filter["timestamp"] = bson.M{"$gte": opts.Since.UTC()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tierpay/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tierpay collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: nil,
		colUsage: {
			{
				Keys:    bson.D{{Key: "user_addr", Value: 1}, {Key: "provider_addr", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colProviders: {
			{Keys: bson.D{{Key: "registered", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colPlatform:      nil,
		colRoyaltyTokens: nil,
		colRoyaltyConfig: nil,
		colEvents: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "counterparty", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "token_id", Value: 1}}},
		},
	}
}
