package repository

import (
	"context"
	"database/sql"
)

// schemaStatements - DDL журнала, применяется идемпотентно
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS brokers (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name VARCHAR(100) NOT NULL,
		broker_type VARCHAR(20) NOT NULL,
		credentials TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		last_sync_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_brokers_user ON brokers (user_id, broker_type)`,

	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		user_id BIGINT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS strategies (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name VARCHAR(100) NOT NULL,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		broker_id BIGINT REFERENCES brokers (id) ON DELETE SET NULL,
		strategy_id BIGINT REFERENCES strategies (id) ON DELETE SET NULL,
		symbol VARCHAR(40) NOT NULL,
		trade_type VARCHAR(10) NOT NULL,
		position_side VARCHAR(10) NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION,
		status VARCHAR(10) NOT NULL DEFAULT 'open',
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		external_id VARCHAR(100),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_broker_external
		ON trades (broker_id, external_id) WHERE external_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_opened ON trades (user_id, opened_at DESC)`,
}

// Migrate создает таблицы и индексы, если их еще нет
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
