package ports

import (
	"context"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

// Store is the durable accounting store. One implementation backs it with
// SQLite; tests use the same implementation on :memory:.
type Store interface {
	// Capital state (single global row)
	LoadCapitalState(ctx context.Context) (domain.CapitalRecord, error)
	SaveCapitalState(ctx context.Context, rec domain.CapitalRecord) error

	// Position mirror
	SavePosition(ctx context.Context, p domain.Position, runID string) error
	UpdatePositionSize(ctx context.Context, tradeID string, notionalUSD float64) error
	ClosePosition(ctx context.Context, tradeID, exitReason string, pnlUSD float64, closedAt time.Time) error
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)

	// Trade records
	SaveTrade(ctx context.Context, t domain.TradeRecord) error
	GetOpenTrades(ctx context.Context) ([]domain.TradeRecord, error)
	GetClosedTradesByRun(ctx context.Context, runID string, since *time.Time) ([]domain.TradeRecord, error)
	ForceCloseTrade(ctx context.Context, tradeID, exitReason string, exitTime time.Time) error

	// Run epochs
	SaveRunEpoch(ctx context.Context, e domain.RunEpoch) error
	CloseRunEpoch(ctx context.Context, runID string) error
	LatestRunEpoch(ctx context.Context) (*domain.RunEpoch, error)

	// Capital locks
	SaveCapitalLock(ctx context.Context, l domain.CapitalLock) error
	GetCapitalLocks(ctx context.Context) ([]domain.CapitalLock, error)
	ReleaseCapitalLock(ctx context.Context, tradeID string) error
	ClearOrphanedLocks(ctx context.Context, openTradeIDs []string) (int, error)

	Close() error
}
