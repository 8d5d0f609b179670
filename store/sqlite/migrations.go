package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the loyalty store (SQLite).
var Migrations = migrate.NewGroup("loyalty")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_loyalty_businesses",
			Version: "20240501000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS loyalty_businesses (
    id                TEXT PRIMARY KEY,
    owner             TEXT NOT NULL,
    name              TEXT NOT NULL,
    category          TEXT NOT NULL,
    tokens_per_dollar INTEGER NOT NULL CHECK (tokens_per_dollar > 0),
    max_discount      INTEGER NOT NULL DEFAULT 0 CHECK (max_discount BETWEEN 0 AND 100),
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_businesses_owner ON loyalty_businesses (owner);
CREATE INDEX IF NOT EXISTS idx_loyalty_businesses_category ON loyalty_businesses (category, is_active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS loyalty_businesses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_loyalty_balances",
			Version: "20240501000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS loyalty_balances (
    customer    TEXT NOT NULL,
    business_id TEXT NOT NULL,
    amount      INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
    version     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL,
    PRIMARY KEY (customer, business_id)
);

CREATE INDEX IF NOT EXISTS idx_loyalty_balances_business ON loyalty_balances (business_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS loyalty_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_loyalty_transactions",
			Version: "20240501000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS loyalty_transactions (
    id                  TEXT PRIMARY KEY,
    customer            TEXT NOT NULL,
    business_id         TEXT NOT NULL,
    transaction_type    TEXT NOT NULL CHECK (transaction_type IN ('earn', 'redeem')),
    amount_usd          INTEGER NOT NULL DEFAULT 0,
    tokens_amount       INTEGER NOT NULL DEFAULT 0,
    discount_percentage INTEGER NOT NULL DEFAULT 0,
    balance_after       INTEGER NOT NULL DEFAULT 0,
    sequence            INTEGER NOT NULL,
    timestamp           TIMESTAMP NOT NULL,
    signature           TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_tx_signature ON loyalty_transactions (signature);
CREATE INDEX IF NOT EXISTS idx_loyalty_tx_customer ON loyalty_transactions (customer, timestamp, sequence);
CREATE INDEX IF NOT EXISTS idx_loyalty_tx_business ON loyalty_transactions (business_id, timestamp, sequence);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS loyalty_transactions`)
				return err
			},
		},
	)
}
