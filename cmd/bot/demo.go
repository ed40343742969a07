package main

// demo.go — a scripted open/update/close sequence that exercises the full
// accounting surface without touching a real DEX. Leaves one position open
// on purpose: restart the bot afterwards to watch the startup reconciler
// recover it.

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/notify"
	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/storage"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/epoch"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/ledger"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/reconcile"
	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

type demoEntry struct {
	pool     string
	tier     domain.Tier
	notional float64
	price    float64
}

var demoEntries = []demoEntry{
	{pool: "SOL-USDC-bin25", tier: domain.TierCore, notional: 250, price: 148.20},
	{pool: "JUP-USDC-bin50", tier: domain.TierMicro, notional: 60, price: 0.92},
	{pool: "WIF-SOL-bin100", tier: domain.TierScale, notional: 400, price: 0.0041},
}

func runDemo(ctx context.Context, store *storage.SQLiteStore, epochs *epoch.Manager, book *ledger.Ledger, pnl *reconcile.PnLService, console *notify.Console) error {
	runID := epochs.ActiveRunID()
	slog.Info("=== DEMO MODE: scripted position lifecycle ===", "run_id", runID)

	var tradeIDs []string
	for _, e := range demoEntries {
		id := uuid.New().String()
		tradeIDs = append(tradeIDs, id)

		pos := domain.Position{
			TradeID:     id,
			Pool:        e.pool,
			Tier:        e.tier,
			NotionalUSD: e.notional,
			EntryPrice:  e.price,
			OpenedAt:    time.Now().UTC(),
		}
		if err := book.Open(pos); err != nil {
			return err
		}
		if err := store.SavePosition(ctx, pos, runID); err != nil {
			return err
		}
		if err := store.SaveTrade(ctx, domain.TradeRecord{
			ID:            id,
			Pool:          e.pool,
			Status:        domain.TradeOpen,
			EntryValueUSD: e.notional,
			EntryFeesUSD:  e.notional * 0.0015,
			RunID:         runID,
			CreatedAt:     time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := store.SaveCapitalLock(ctx, domain.CapitalLock{TradeID: id, AmountUSD: e.notional}); err != nil {
			return err
		}
	}

	console.PortfolioSnapshot(book.State(), book.OpenPositions())

	// Partial close on the SCALE position.
	if err := book.Update(tradeIDs[2], 300); err != nil {
		return err
	}
	if err := store.UpdatePositionSize(ctx, tradeIDs[2], 300); err != nil {
		return err
	}

	// Round-trip the first two positions, one winner and one loser.
	exits := []float64{+7.35, -2.10}
	for i, pnlUSD := range exits {
		id := tradeIDs[i]
		e := demoEntries[i]
		now := time.Now().UTC()

		if err := store.SaveTrade(ctx, domain.TradeRecord{
			ID:            id,
			Pool:          e.pool,
			Status:        domain.TradeClosed,
			EntryValueUSD: e.notional,
			ExitValueUSD:  e.notional + pnlUSD,
			PnLNet:        pnlUSD,
			ExitReason:    domain.ExitReasonTarget,
			RunID:         runID,
			CreatedAt:     now.Add(-time.Minute),
			ExitTime:      &now,
		}); err != nil {
			return err
		}
		if err := store.ClosePosition(ctx, id, domain.ExitReasonTarget, pnlUSD, now); err != nil {
			return err
		}
		if err := store.ReleaseCapitalLock(ctx, id); err != nil {
			return err
		}
		if err := book.Close(id); err != nil {
			return err
		}
		if err := book.AddRealizedPnL(pnlUSD); err != nil {
			return err
		}
	}

	// Let the drift watcher confirm cache and store agree.
	report, err := pnl.Reconcile(ctx, 0.01)
	if err != nil {
		return err
	}
	slog.Info("demo: drift check",
		"has_drift", report.HasDrift, "cached", report.CachedUSD, "store", report.StoreUSD)

	console.PortfolioSnapshot(book.State(), book.OpenPositions())
	slog.Info("demo complete — restart without -demo to watch the reconciler recover the open position",
		"open_trade", tradeIDs[2])
	return nil
}
