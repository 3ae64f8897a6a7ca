package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dex-dip-bot/internal/capital"
	"dex-dip-bot/internal/orders"
	"dex-dip-bot/internal/pnl"
	"dex-dip-bot/internal/regime"
	"dex-dip-bot/internal/reserve"
	"dex-dip-bot/internal/runner"
	"dex-dip-bot/internal/scaleout"
	"dex-dip-bot/internal/strategy"
	"dex-dip-bot/internal/venue"
)

func venueSide(s string) venue.Side {
	if s == string(venue.SideSell) {
		return venue.SideSell
	}
	return venue.SideBuy
}

// Repository provides data access for bot state and the trade ledger.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// BOT STATE SNAPSHOTS
// ============================================================================

// saveStateColumn upserts one component's snapshot for an instance. column is
// always a compile-time constant, never caller input.
func (r *Repository) saveStateColumn(ctx context.Context, instanceID, column string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s for %s: %w", column, instanceID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO bot_states (instance_id, %s, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (instance_id)
		DO UPDATE SET %s = $2, updated_at = CURRENT_TIMESTAMP
	`, column, column)

	if _, err := r.db.Pool.Exec(ctx, query, instanceID, data); err != nil {
		return fmt.Errorf("failed to save %s for %s: %w", column, instanceID, err)
	}
	return nil
}

// loadStateColumn reads one component's snapshot into v. Returns false when
// the instance has no snapshot or the column is null.
func (r *Repository) loadStateColumn(ctx context.Context, instanceID, column string, v interface{}) (bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM bot_states WHERE instance_id = $1`, column)

	var data []byte
	err := r.db.Pool.QueryRow(ctx, query, instanceID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s for %s: %w", column, instanceID, err)
	}
	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s for %s: %w", column, instanceID, err)
	}
	return true, nil
}

func (r *Repository) SaveStrategyState(ctx context.Context, instanceID string, st strategy.State) error {
	return r.saveStateColumn(ctx, instanceID, "strategy_state", st)
}

func (r *Repository) LoadStrategyState(ctx context.Context, instanceID string) (strategy.State, bool, error) {
	var st strategy.State
	found, err := r.loadStateColumn(ctx, instanceID, "strategy_state", &st)
	return st, found, err
}

func (r *Repository) SaveCapitalState(ctx context.Context, instanceID string, st capital.BotCapitalState) error {
	return r.saveStateColumn(ctx, instanceID, "capital_state", st)
}

func (r *Repository) LoadCapitalState(ctx context.Context, instanceID string) (capital.BotCapitalState, bool, error) {
	var st capital.BotCapitalState
	found, err := r.loadStateColumn(ctx, instanceID, "capital_state", &st)
	return st, found, err
}

func (r *Repository) SavePnlBook(ctx context.Context, instanceID string, book pnl.Book) error {
	return r.saveStateColumn(ctx, instanceID, "pnl_book", book)
}

func (r *Repository) LoadPnlBook(ctx context.Context, instanceID string) (pnl.Book, bool, error) {
	var book pnl.Book
	found, err := r.loadStateColumn(ctx, instanceID, "pnl_book", &book)
	return book, found, err
}

func (r *Repository) SaveExtensionState(ctx context.Context, instanceID string, st scaleout.ExtensionStateData) error {
	return r.saveStateColumn(ctx, instanceID, "extension_state", st)
}

func (r *Repository) LoadExtensionState(ctx context.Context, instanceID string) (scaleout.ExtensionStateData, bool, error) {
	var st scaleout.ExtensionStateData
	found, err := r.loadStateColumn(ctx, instanceID, "extension_state", &st)
	return st, found, err
}

func (r *Repository) SaveRunnerState(ctx context.Context, instanceID string, st runner.StateData) error {
	return r.saveStateColumn(ctx, instanceID, "runner_state", st)
}

func (r *Repository) LoadRunnerState(ctx context.Context, instanceID string) (runner.StateData, bool, error) {
	var st runner.StateData
	found, err := r.loadStateColumn(ctx, instanceID, "runner_state", &st)
	return st, found, err
}

func (r *Repository) SaveReserveState(ctx context.Context, instanceID string, st reserve.State) error {
	return r.saveStateColumn(ctx, instanceID, "reserve_state", st)
}

func (r *Repository) LoadReserveState(ctx context.Context, instanceID string) (reserve.State, bool, error) {
	var st reserve.State
	found, err := r.loadStateColumn(ctx, instanceID, "reserve_state", &st)
	return st, found, err
}

// ============================================================================
// TRADE ATTEMPTS
// ============================================================================

// RecordTradeAttempt appends one attempt. Returns false without error when
// the client order id already exists, keeping the ledger idempotent.
func (r *Repository) RecordTradeAttempt(ctx context.Context, a orders.Attempt) (bool, error) {
	query := `
		INSERT INTO trade_attempts
			(client_order_id, instance_id, side, quote_amount, base_qty, price, status, reason, tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_order_id) DO NOTHING
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		a.ClientOrderID, a.InstanceID, string(a.Side), a.QuoteAmount, a.BaseQty,
		a.Price, string(a.Status), a.Reason, a.TxRef,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record trade attempt %s: %w", a.ClientOrderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResolveTradeAttempt updates an attempt's terminal status.
func (r *Repository) ResolveTradeAttempt(ctx context.Context, clientOrderID string, status orders.AttemptStatus, txRef, reason string) error {
	query := `
		UPDATE trade_attempts
		SET status = $2, tx_ref = $3, reason = $4, updated_at = CURRENT_TIMESTAMP
		WHERE client_order_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, clientOrderID, string(status), txRef, reason)
	if err != nil {
		return fmt.Errorf("failed to resolve trade attempt %s: %w", clientOrderID, err)
	}
	return nil
}

// ListTradeAttempts returns an instance's most recent attempts.
func (r *Repository) ListTradeAttempts(ctx context.Context, instanceID string, limit int) ([]orders.Attempt, error) {
	query := `
		SELECT client_order_id, instance_id, side, quote_amount, base_qty, price,
		       status, COALESCE(reason, ''), COALESCE(tx_ref, ''), created_at, updated_at
		FROM trade_attempts
		WHERE instance_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trade attempts for %s: %w", instanceID, err)
	}
	defer rows.Close()

	var attempts []orders.Attempt
	for rows.Next() {
		var a orders.Attempt
		var side, status string
		if err := rows.Scan(
			&a.ClientOrderID, &a.InstanceID, &side, &a.QuoteAmount, &a.BaseQty,
			&a.Price, &status, &a.Reason, &a.TxRef, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Side = venueSide(side)
		a.Status = orders.AttemptStatus(status)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ============================================================================
// HOURLY STATS
// ============================================================================

// hourStartKey converts a cutoff into the unix-second keys hourly_stats is
// indexed by, matching regime.HourlyStats.HourStart.
func hourStartKey(t time.Time) int64 {
	return t.Truncate(time.Hour).Unix()
}

// SaveHourlyStats upserts one hour's aggregates for an instance. hour_start
// is stored as unix seconds, the same representation the stats carry.
func (r *Repository) SaveHourlyStats(ctx context.Context, instanceID string, stats regime.HourlyStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal hourly stats: %w", err)
	}

	query := `
		INSERT INTO hourly_stats (instance_id, hour_start, stats)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_id, hour_start)
		DO UPDATE SET stats = $3
	`
	if _, err := r.db.Pool.Exec(ctx, query, instanceID, stats.HourStart, data); err != nil {
		return fmt.Errorf("failed to save hourly stats for %s: %w", instanceID, err)
	}
	return nil
}

// LoadHourlyStats returns an instance's aggregates since the cutoff, oldest
// first, for seeding the analytics window after a restart.
func (r *Repository) LoadHourlyStats(ctx context.Context, instanceID string, since time.Time) ([]regime.HourlyStats, error) {
	query := `
		SELECT stats FROM hourly_stats
		WHERE instance_id = $1 AND hour_start >= $2
		ORDER BY hour_start ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, instanceID, hourStartKey(since))
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly stats for %s: %w", instanceID, err)
	}
	defer rows.Close()

	var out []regime.HourlyStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var stats regime.HourlyStats
		if err := json.Unmarshal(data, &stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal hourly stats: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}
