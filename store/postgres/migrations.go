package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tierpay store.
var Migrations = migrate.NewGroup("tierpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tierpay_accounts",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tierpay_accounts (
    user_addr       TEXT PRIMARY KEY,
    total_deposited TEXT NOT NULL DEFAULT '0',
    total_used      TEXT NOT NULL DEFAULT '0',
    last_deposit_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tierpay_usage (
    user_addr     TEXT NOT NULL,
    provider_addr TEXT NOT NULL,
    units         BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_addr, provider_addr)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tierpay_usage; DROP TABLE IF EXISTS tierpay_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tierpay_providers",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tierpay_providers (
    address       TEXT PRIMARY KEY,
    registered    BOOLEAN NOT NULL DEFAULT FALSE,
    royalty_bps   BIGINT NOT NULL DEFAULT 0,
    fallback_rate TEXT NOT NULL DEFAULT '0',
    balance       TEXT NOT NULL DEFAULT '0',
    tiers         JSONB NOT NULL DEFAULT '[]',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tierpay_providers_registered ON tierpay_providers (registered, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tierpay_providers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tierpay_platform",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tierpay_platform (
    id                   INT PRIMARY KEY CHECK (id = 1),
    settlement_token     TEXT NOT NULL DEFAULT '',
    lock_period_ns       BIGINT NOT NULL DEFAULT 0,
    default_royalty_bps  BIGINT NOT NULL DEFAULT 0,
    royalty_receiver     TEXT NOT NULL DEFAULT '',
    discount_bps         BIGINT NOT NULL DEFAULT 0,
    discount_collections JSONB NOT NULL DEFAULT '[]',
    usage_oracle         TEXT NOT NULL DEFAULT '',
    royalty_accrued      TEXT NOT NULL DEFAULT '0',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tierpay_platform`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tierpay_royalty",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tierpay_royalty_tokens (
    token_id      BIGINT PRIMARY KEY,
    royalty_owner TEXT NOT NULL DEFAULT '',
    royalty_wei   TEXT NOT NULL DEFAULT '0',
    minted_owner  TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tierpay_royalty_config (
    id                          INT PRIMARY KEY CHECK (id = 1),
    manufacturer_bp             BIGINT NOT NULL DEFAULT 0,
    partner_bp                  BIGINT NOT NULL DEFAULT 0,
    creator_bp                  BIGINT NOT NULL DEFAULT 0,
    denominator                 BIGINT NOT NULL DEFAULT 10000,
    partner_wallet              TEXT NOT NULL DEFAULT '',
    enforcement_enabled         BOOLEAN NOT NULL DEFAULT TRUE,
    founder_pass_exempt_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    minted_owner_exempt_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    treasury_fee_enabled        BOOLEAN NOT NULL DEFAULT TRUE,
    settlement_token            TEXT NOT NULL DEFAULT '',
    pair                        TEXT NOT NULL DEFAULT '',
    treasury                    TEXT NOT NULL DEFAULT '',
    founder_pass                TEXT NOT NULL DEFAULT '',
    created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tierpay_royalty_config; DROP TABLE IF EXISTS tierpay_royalty_tokens`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tierpay_events",
			Version: "20260301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tierpay_events (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL,
    account      TEXT NOT NULL DEFAULT '',
    counterparty TEXT NOT NULL DEFAULT '',
    token        TEXT NOT NULL DEFAULT '',
    token_id     BIGINT NOT NULL DEFAULT 0,
    units        BIGINT NOT NULL DEFAULT 0,
    amount       TEXT NOT NULL DEFAULT '0',
    attributes   JSONB,
    timestamp    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tierpay_events_timestamp ON tierpay_events (timestamp DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_tierpay_events_kind ON tierpay_events (kind, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tierpay_events_account ON tierpay_events (account, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tierpay_events_counterparty ON tierpay_events (counterparty, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tierpay_events_token_id ON tierpay_events (token_id) WHERE token_id <> 0;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tierpay_events`)
				return err
			},
		},
	)
}
