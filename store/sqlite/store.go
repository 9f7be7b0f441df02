package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/store/internal/sqlmodel"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tierpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tierpay/sqlite: migration failed: %w", err)
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
	m := new(sqlmodel.Account)
	err := s.sdb.NewSelect(m).
		Where("user_addr = ?", sqlmodel.AddressKey(user)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, user.Hex())
		}
		return nil, err
	}
	return sqlmodel.FromAccount(m)
}

func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	_, err := s.sdb.NewInsert(sqlmodel.ToAccount(a)).
		OnConflict("(user_addr) DO UPDATE").
		Set("total_deposited = EXCLUDED.total_deposited").
		Set("total_used = EXCLUDED.total_used").
		Set("last_deposit_at = EXCLUDED.last_deposit_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetUsage(ctx context.Context, user, prov common.Address) (*account.Usage, error) {
	m := new(sqlmodel.Usage)
	err := s.sdb.NewSelect(m).
		Where("user_addr = ?", sqlmodel.AddressKey(user)).
		Where("provider_addr = ?", sqlmodel.AddressKey(prov)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: usage %s/%s", store.ErrNotFound, user.Hex(), prov.Hex())
		}
		return nil, err
	}
	return sqlmodel.FromUsage(m), nil
}

func (s *Store) SaveUsage(ctx context.Context, u *account.Usage) error {
	_, err := s.sdb.NewInsert(sqlmodel.ToUsage(u)).
		OnConflict("(user_addr, provider_addr) DO UPDATE").
		Set("units = EXCLUDED.units").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Provider Store ====================

func (s *Store) GetProvider(ctx context.Context, addr common.Address) (*provider.Provider, error) {
	m := new(sqlmodel.Provider)
	err := s.sdb.NewSelect(m).
		Where("address = ?", sqlmodel.AddressKey(addr)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: provider %s", store.ErrNotFound, addr.Hex())
		}
		return nil, err
	}
	return sqlmodel.FromProvider(m)
}

func (s *Store) SaveProvider(ctx context.Context, p *provider.Provider) error {
	m, err := sqlmodel.ToProvider(p)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(address) DO UPDATE").
		Set("registered = EXCLUDED.registered").
		Set("royalty_bps = EXCLUDED.royalty_bps").
		Set("fallback_rate = EXCLUDED.fallback_rate").
		Set("balance = EXCLUDED.balance").
		Set("tiers = EXCLUDED.tiers").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListProviders(ctx context.Context, opts provider.ListOpts) ([]*provider.Provider, error) {
	var models []sqlmodel.Provider
	q := s.sdb.NewSelect(&models)

	if opts.RegisteredOnly {
		q = q.Where("registered = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, address ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*provider.Provider, len(models))
	for i := range models {
		p, err := sqlmodel.FromProvider(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Platform Store ====================

func (s *Store) GetPlatform(ctx context.Context) (*platform.State, error) {
	m := new(sqlmodel.Platform)
	err := s.sdb.NewSelect(m).
		Where("id = ?", sqlmodel.SingletonID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: platform", store.ErrNotFound)
		}
		return nil, err
	}
	return sqlmodel.FromPlatform(m)
}

func (s *Store) SavePlatform(ctx context.Context, st *platform.State) error {
	m, err := sqlmodel.ToPlatform(st)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("settlement_token = EXCLUDED.settlement_token").
		Set("lock_period_ns = EXCLUDED.lock_period_ns").
		Set("default_royalty_bps = EXCLUDED.default_royalty_bps").
		Set("royalty_receiver = EXCLUDED.royalty_receiver").
		Set("discount_bps = EXCLUDED.discount_bps").
		Set("discount_collections = EXCLUDED.discount_collections").
		Set("usage_oracle = EXCLUDED.usage_oracle").
		Set("royalty_accrued = EXCLUDED.royalty_accrued").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Royalty Store ====================

func (s *Store) GetRoyaltyToken(ctx context.Context, tokenID uint64) (*royalty.Token, error) {
	m := new(sqlmodel.RoyaltyToken)
	err := s.sdb.NewSelect(m).
		Where("token_id = ?", sqlmodel.TokenKey(tokenID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: royalty token %d", store.ErrNotFound, tokenID)
		}
		return nil, err
	}
	return sqlmodel.FromRoyaltyToken(m)
}

func (s *Store) SaveRoyaltyToken(ctx context.Context, t *royalty.Token) error {
	_, err := s.sdb.NewInsert(sqlmodel.ToRoyaltyToken(t)).
		OnConflict("(token_id) DO UPDATE").
		Set("royalty_owner = EXCLUDED.royalty_owner").
		Set("royalty_wei = EXCLUDED.royalty_wei").
		Set("minted_owner = EXCLUDED.minted_owner").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetRoyaltyConfig(ctx context.Context) (*royalty.Config, error) {
	m := new(sqlmodel.RoyaltyConfig)
	err := s.sdb.NewSelect(m).
		Where("id = ?", sqlmodel.SingletonID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: royalty config", store.ErrNotFound)
		}
		return nil, err
	}
	return sqlmodel.FromRoyaltyConfig(m), nil
}

func (s *Store) SaveRoyaltyConfig(ctx context.Context, c *royalty.Config) error {
	_, err := s.sdb.NewInsert(sqlmodel.ToRoyaltyConfig(c)).
		OnConflict("(id) DO UPDATE").
		Set("manufacturer_bp = EXCLUDED.manufacturer_bp").
		Set("partner_bp = EXCLUDED.partner_bp").
		Set("creator_bp = EXCLUDED.creator_bp").
		Set("denominator = EXCLUDED.denominator").
		Set("partner_wallet = EXCLUDED.partner_wallet").
		Set("enforcement_enabled = EXCLUDED.enforcement_enabled").
		Set("founder_pass_exempt_enabled = EXCLUDED.founder_pass_exempt_enabled").
		Set("minted_owner_exempt_enabled = EXCLUDED.minted_owner_exempt_enabled").
		Set("treasury_fee_enabled = EXCLUDED.treasury_fee_enabled").
		Set("settlement_token = EXCLUDED.settlement_token").
		Set("pair = EXCLUDED.pair").
		Set("treasury = EXCLUDED.treasury").
		Set("founder_pass = EXCLUDED.founder_pass").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	m, err := sqlmodel.ToEvent(e)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []sqlmodel.Event
	q := s.sdb.NewSelect(&models)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if len(opts.Kinds) > 0 {
		args := make([]any, len(opts.Kinds))
		for i, k := range opts.Kinds {
			args[i] = string(k)
		}
		q = q.Where("kind IN (?"+strings.Repeat(", ?", len(args)-1)+")", args...)
	}
	if opts.Account != (common.Address{}) {
		key := sqlmodel.AddressKey(opts.Account)
		q = q.Where("(account = ? OR counterparty = ?)", key, key)
	}
	if opts.TokenID != 0 {
		q = q.Where("token_id = ?", sqlmodel.TokenKey(opts.TokenID))
	}
	if !opts.Since.IsZero() {
		q = q.Where("timestamp >= ?", opts.Since.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := sqlmodel.FromEvent(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
