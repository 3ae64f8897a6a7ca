// Package database persists bot state snapshots and the append-only trade
// attempt ledger in PostgreSQL. The decision core never touches storage;
// the bot loop loads state at startup and saves deltas after settlement.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"dex-dip-bot/config"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection pool and verifies connectivity.
func NewDB(cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "Database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to postgres")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations creates the schema.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		// Per-instance state snapshots, one JSONB column per component.
		`CREATE TABLE IF NOT EXISTS bot_states (
			instance_id VARCHAR(32) PRIMARY KEY,
			strategy_state JSONB,
			capital_state JSONB,
			pnl_book JSONB,
			extension_state JSONB,
			runner_state JSONB,
			reserve_state JSONB,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Append-only trade attempt ledger. The unique client order id makes
		// duplicate submissions a no-op at the persistence layer too.
		`CREATE TABLE IF NOT EXISTS trade_attempts (
			id BIGSERIAL PRIMARY KEY,
			client_order_id VARCHAR(64) NOT NULL UNIQUE,
			instance_id VARCHAR(32) NOT NULL,
			side VARCHAR(4) NOT NULL,
			quote_amount DECIMAL(20, 8) NOT NULL DEFAULT 0,
			base_qty DECIMAL(20, 8) NOT NULL DEFAULT 0,
			price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			reason TEXT,
			tx_ref VARCHAR(128),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_attempts_instance ON trade_attempts(instance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_attempts_created_at ON trade_attempts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_attempts_status ON trade_attempts(status)`,

		// Hourly market aggregates feeding the regime classifier across
		// restarts.
		`CREATE TABLE IF NOT EXISTS hourly_stats (
			id BIGSERIAL PRIMARY KEY,
			instance_id VARCHAR(32) NOT NULL,
			hour_start BIGINT NOT NULL,
			stats JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (instance_id, hour_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hourly_stats_instance ON hourly_stats(instance_id, hour_start)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}
