package storage

// trades.go — trade records and run epochs. Trades are the realized-PnL
// source of truth; every aggregate query here is scoped by run_id so a new
// run never sees a previous run's economics.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

// SaveTrade upserts a full trade record.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
		  (id, pool_address, status, entry_asset_value_usd, exit_asset_value_usd,
		   entry_fees_paid, exit_fees_paid, entry_slippage_usd, exit_slippage_usd,
		   pnl_net, exit_reason, run_id, created_at, exit_time)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Pool, string(t.Status), t.EntryValueUSD, t.ExitValueUSD,
		t.EntryFeesUSD, t.ExitFeesUSD, t.EntrySlippageUSD, t.ExitSlippageUSD,
		t.PnLNet, t.ExitReason, t.RunID, t.CreatedAt.UTC(), nullTime(t.ExitTime),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %s: %w", t.ID, err)
	}
	return nil
}

// GetOpenTrades returns all trades still marked open, oldest first.
func (s *SQLiteStore) GetOpenTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	return s.queryTrades(ctx, `WHERE status = 'open' ORDER BY created_at ASC`)
}

// GetClosedTradesByRun returns closed trades for the given run, optionally
// limited to those that exited after since.
func (s *SQLiteStore) GetClosedTradesByRun(ctx context.Context, runID string, since *time.Time) ([]domain.TradeRecord, error) {
	if since != nil {
		return s.queryTrades(ctx,
			`WHERE status = 'closed' AND run_id = ? AND exit_time >= ? ORDER BY exit_time ASC`,
			runID, since.UTC())
	}
	return s.queryTrades(ctx,
		`WHERE status = 'closed' AND run_id = ? ORDER BY exit_time ASC`, runID)
}

// ForceCloseTrade closes an open trade PnL-neutrally: exit value is set to
// entry value, exit costs stay zero, and pnl_net is written as exactly 0.
// The system never records a PnL it cannot prove.
func (s *SQLiteStore) ForceCloseTrade(ctx context.Context, tradeID, exitReason string, exitTime time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE trades SET
		  status = 'closed',
		  exit_asset_value_usd = entry_asset_value_usd,
		  pnl_net = 0,
		  exit_reason = ?,
		  exit_time = ?
		WHERE id = ? AND status = 'open'`,
		exitReason, exitTime.UTC(), tradeID)
	if err != nil {
		return fmt.Errorf("storage.ForceCloseTrade: %s: %w", tradeID, err)
	}
	return nil
}

func (s *SQLiteStore) queryTrades(ctx context.Context, where string, args ...any) ([]domain.TradeRecord, error) {
	q := `SELECT id, pool_address, status, entry_asset_value_usd, exit_asset_value_usd,
	             entry_fees_paid, exit_fees_paid, entry_slippage_usd, exit_slippage_usd,
	             pnl_net, exit_reason, run_id, created_at, exit_time
	      FROM trades ` + where

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryTrades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.TradeRecord, error) {
	var t domain.TradeRecord
	var status, createdAt string
	var exitReason, exitTime sql.NullString

	err := rows.Scan(
		&t.ID, &t.Pool, &status, &t.EntryValueUSD, &t.ExitValueUSD,
		&t.EntryFeesUSD, &t.ExitFeesUSD, &t.EntrySlippageUSD, &t.ExitSlippageUSD,
		&t.PnLNet, &exitReason, &t.RunID, &createdAt, &exitTime,
	)
	if err != nil {
		return t, fmt.Errorf("storage.scanTrade: %w", err)
	}

	t.Status = domain.TradeStatus(status)
	t.ExitReason = exitReason.String
	t.CreatedAt = parseStoredTime(createdAt)
	if exitTime.Valid && exitTime.String != "" {
		et := parseStoredTime(exitTime.String)
		if !et.IsZero() {
			t.ExitTime = &et
		}
	}
	return t, nil
}

// ─── Run epochs ──────────────────────────────────────────────────────────────

// SaveRunEpoch inserts a new epoch row.
func (s *SQLiteStore) SaveRunEpoch(ctx context.Context, e domain.RunEpoch) error {
	var parent any
	if e.ParentRunID != "" {
		parent = e.ParentRunID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_epochs (run_id, started_at, starting_capital, parent_run_id, status)
		VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.StartedAt.UTC(), e.StartingCapitalUSD, parent, string(e.Status))
	if err != nil {
		return fmt.Errorf("storage.SaveRunEpoch: %s: %w", e.RunID, err)
	}
	return nil
}

// CloseRunEpoch marks an epoch closed.
func (s *SQLiteStore) CloseRunEpoch(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_epochs SET status='closed' WHERE run_id=?`, runID)
	if err != nil {
		return fmt.Errorf("storage.CloseRunEpoch: %s: %w", runID, err)
	}
	return nil
}

// LatestRunEpoch returns the most recently started epoch, or nil if the
// table is empty (first ever boot).
func (s *SQLiteStore) LatestRunEpoch(ctx context.Context) (*domain.RunEpoch, error) {
	var e domain.RunEpoch
	var startedAt, status string
	var parent sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, starting_capital, parent_run_id, status
		FROM run_epochs ORDER BY started_at DESC, run_id DESC LIMIT 1`).Scan(
		&e.RunID, &startedAt, &e.StartingCapitalUSD, &parent, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LatestRunEpoch: %w", err)
	}

	e.StartedAt = parseStoredTime(startedAt)
	e.ParentRunID = parent.String
	e.Status = domain.EpochStatus(status)
	return &e, nil
}
