package storage

// positions.go — durable mirror of ledger positions plus capital locks.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

// SavePosition upserts the durable mirror of an open position.
func (s *SQLiteStore) SavePosition(ctx context.Context, p domain.Position, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (trade_id, pool_address, tier, size_usd, entry_price, opened_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
		  size_usd    = excluded.size_usd,
		  entry_price = excluded.entry_price`,
		p.TradeID, p.Pool, string(p.Tier), p.NotionalUSD, p.EntryPrice, p.OpenedAt.UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %s: %w", p.TradeID, err)
	}
	return nil
}

// UpdatePositionSize updates only the notional of an open position.
func (s *SQLiteStore) UpdatePositionSize(ctx context.Context, tradeID string, notionalUSD float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET size_usd=? WHERE trade_id=? AND closed_at IS NULL`,
		notionalUSD, tradeID)
	if err != nil {
		return fmt.Errorf("storage.UpdatePositionSize: %s: %w", tradeID, err)
	}
	return nil
}

// ClosePosition marks a position row closed with its exit reason and PnL.
func (s *SQLiteStore) ClosePosition(ctx context.Context, tradeID, exitReason string, pnlUSD float64, closedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET closed_at=?, exit_reason=?, pnl_usd=? WHERE trade_id=? AND closed_at IS NULL`,
		closedAt.UTC(), exitReason, pnlUSD, tradeID)
	if err != nil {
		return fmt.Errorf("storage.ClosePosition: %s: %w", tradeID, err)
	}
	return nil
}

// GetOpenPositions returns all positions without a close timestamp, oldest
// first.
func (s *SQLiteStore) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, pool_address, tier, size_usd, entry_price, opened_at
		FROM positions WHERE closed_at IS NULL ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var tier, openedAt string
		if err := rows.Scan(&p.TradeID, &p.Pool, &tier, &p.NotionalUSD, &p.EntryPrice, &openedAt); err != nil {
			return nil, fmt.Errorf("storage.GetOpenPositions: scan: %w", err)
		}
		p.Tier = domain.Tier(tier)
		p.OpenedAt = parseStoredTime(openedAt)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ─── Capital locks ───────────────────────────────────────────────────────────

// SaveCapitalLock upserts a capital reservation for a trade.
func (s *SQLiteStore) SaveCapitalLock(ctx context.Context, l domain.CapitalLock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capital_locks (trade_id, amount) VALUES (?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET amount = excluded.amount`,
		l.TradeID, l.AmountUSD)
	if err != nil {
		return fmt.Errorf("storage.SaveCapitalLock: %s: %w", l.TradeID, err)
	}
	return nil
}

// GetCapitalLocks returns all current lock rows.
func (s *SQLiteStore) GetCapitalLocks(ctx context.Context) ([]domain.CapitalLock, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_id, amount FROM capital_locks`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetCapitalLocks: query: %w", err)
	}
	defer rows.Close()

	var locks []domain.CapitalLock
	for rows.Next() {
		var l domain.CapitalLock
		if err := rows.Scan(&l.TradeID, &l.AmountUSD); err != nil {
			return nil, fmt.Errorf("storage.GetCapitalLocks: scan: %w", err)
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// ReleaseCapitalLock deletes the lock for a trade, if any.
func (s *SQLiteStore) ReleaseCapitalLock(ctx context.Context, tradeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM capital_locks WHERE trade_id=?`, tradeID)
	if err != nil {
		return fmt.Errorf("storage.ReleaseCapitalLock: %s: %w", tradeID, err)
	}
	return nil
}

// ClearOrphanedLocks deletes every lock whose trade id is not in the given
// set of open trades, returning how many rows went. Handles locks that
// outlived their trade due to a partial write.
func (s *SQLiteStore) ClearOrphanedLocks(ctx context.Context, openTradeIDs []string) (int, error) {
	var res sql.Result
	var err error

	if len(openTradeIDs) == 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM capital_locks`)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(openTradeIDs)), ",")
		args := make([]any, len(openTradeIDs))
		for i, id := range openTradeIDs {
			args[i] = id
		}
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM capital_locks WHERE trade_id NOT IN (`+placeholders+`)`, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("storage.ClearOrphanedLocks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
