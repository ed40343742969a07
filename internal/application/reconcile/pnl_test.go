package reconcile_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/storage"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/epoch"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/ledger"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/reconcile"
	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

// stubPrices serves fixed mark prices per pool.
type stubPrices map[string]float64

func (s stubPrices) PoolPrice(_ context.Context, pool string) (float64, error) {
	p, ok := s[pool]
	if !ok {
		return 0, fmt.Errorf("no price for %s", pool)
	}
	return p, nil
}

func bootFresh(t *testing.T, s *storage.SQLiteStore, capital float64) (*epoch.Manager, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()

	m := epoch.NewManager(s)
	d, err := m.ValidateStartupConditions(ctx, true, capital, 0)
	require.NoError(t, err)
	_, err = m.InitializeRunEpoch(ctx, d)
	require.NoError(t, err)

	book := ledger.New(ledger.ModeDev)
	require.NoError(t, book.Initialize(capital))
	return m, book
}

func closeTrade(t *testing.T, s *storage.SQLiteStore, runID, id string, entry, exit, fees, slip float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.SaveTrade(context.Background(), domain.TradeRecord{
		ID:               id,
		Pool:             "SOL-USDC-bin25",
		Status:           domain.TradeClosed,
		EntryValueUSD:    entry,
		ExitValueUSD:     exit,
		EntryFeesUSD:     fees,
		ExitSlippageUSD:  slip,
		PnLNet:           exit - entry - fees - slip,
		ExitReason:       domain.ExitReasonTarget,
		RunID:            runID,
		CreatedAt:        now.Add(-time.Minute),
		ExitTime:         &now,
	}))
}

func TestPnL_DriftDetectionAndCorrection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m, book := bootFresh(t, s, 1000)

	// Three closed trades netting +$12.34 while the cache still says zero,
	// as if an update call went missing.
	runID := m.ActiveRunID()
	closeTrade(t, s, runID, "t1", 100, 110, 0, 0)  // +10.00
	closeTrade(t, s, runID, "t2", 100, 104.44, 0, 0) // +4.44
	closeTrade(t, s, runID, "t3", 100, 97.90, 0, 0)  // -2.10

	svc := reconcile.NewPnLService(s, m, book, stubPrices{}, nil, 0)

	rep, err := svc.Reconcile(ctx, 0.01)
	require.NoError(t, err)
	assert.True(t, rep.HasDrift)
	assert.InDelta(t, 12.34, rep.DriftUSD, 0.001)
	assert.InDelta(t, 0, rep.CachedUSD, 0.001)
	assert.InDelta(t, 12.34, rep.StoreUSD, 0.001)

	require.NoError(t, svc.CorrectDrift(ctx))
	assert.InDelta(t, 12.34, book.RealizedPnL(), 0.001)

	rep, err = svc.Reconcile(ctx, 0.01)
	require.NoError(t, err)
	assert.False(t, rep.HasDrift)
}

func TestPnL_RealizedReportBreakdown(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m, book := bootFresh(t, s, 1000)
	runID := m.ActiveRunID()

	closeTrade(t, s, runID, "win", 200, 230, 3, 1) // net +26
	closeTrade(t, s, runID, "loss", 150, 140, 2, 0) // net -12

	svc := reconcile.NewPnLService(s, m, book, stubPrices{}, nil, 0)
	rep, err := svc.ComputeRealizedPnLFromStore(ctx, nil)
	require.NoError(t, err)

	require.Len(t, rep.Trades, 2)
	assert.InDelta(t, 20, rep.TotalGrossUSD, 0.001)
	assert.InDelta(t, 5, rep.TotalFeesUSD, 0.001)
	assert.InDelta(t, 1, rep.TotalSlipUSD, 0.001)
	assert.InDelta(t, 14, rep.TotalNetUSD, 0.001)
	assert.Equal(t, 1, rep.Wins)
	assert.Equal(t, 1, rep.Losses)
}

// A store with no trade history is authoritative over a nonzero cache.
func TestPnL_EmptyStoreNonzeroCacheIsDrift(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m, book := bootFresh(t, s, 1000)

	book.SetRealizedPnL(5.00)

	svc := reconcile.NewPnLService(s, m, book, stubPrices{}, nil, 0)
	rep, err := svc.Reconcile(ctx, 100) // threshold far above the cache value
	require.NoError(t, err)
	assert.True(t, rep.HasDrift)

	require.NoError(t, svc.CorrectDrift(ctx))
	assert.Zero(t, book.RealizedPnL())
}

// Right after a startup reconciliation, drift is reported but Run must not
// auto-correct — the reconciler's output is already authoritative.
func TestPnL_GracePeriodSuppressesCorrection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedCrashedRun(t, s, 1000)

	m, book, rec, mode := bootContinuation(t, s)
	_, err := rec.Run(ctx, mode)
	require.NoError(t, err)

	// Manufacture drift after reconciliation.
	closeTrade(t, s, m.ActiveRunID(), "late", 100, 120, 0, 0)

	svc := reconcile.NewPnLService(s, m, book, stubPrices{}, rec, time.Hour)

	rep, err := svc.Reconcile(ctx, 0.01)
	require.NoError(t, err)
	assert.True(t, rep.HasDrift)
	assert.True(t, rep.InGrace)

	require.NoError(t, svc.Run(ctx, 0.01))
	assert.Zero(t, book.RealizedPnL()) // untouched during grace

	// Outside the grace window the same drift is corrected.
	fast := reconcile.NewPnLService(s, m, book, stubPrices{}, rec, time.Nanosecond)
	require.NoError(t, fast.Run(ctx, 0.01))
	assert.InDelta(t, 20, book.RealizedPnL(), 0.001)
}

func TestPnL_UnrealizedMarkToMarket(t *testing.T) {
	s := newStore(t)
	m, book := bootFresh(t, s, 1000)

	svc := reconcile.NewPnLService(s, m, book, stubPrices{
		"SOL-USDC-bin25": 163.02, // +10% over entry
		"JUP-USDC-bin50": 0.828,  // -10%
	}, nil, 0)

	positions := []domain.Position{
		{TradeID: "a", Pool: "SOL-USDC-bin25", Tier: domain.TierCore, NotionalUSD: 200, EntryPrice: 148.2},
		{TradeID: "b", Pool: "JUP-USDC-bin50", Tier: domain.TierMicro, NotionalUSD: 100, EntryPrice: 0.92},
		{TradeID: "c", Pool: "UNKNOWN-POOL", Tier: domain.TierMicro, NotionalUSD: 50, EntryPrice: 1},
	}

	total, err := svc.ComputeUnrealizedPnL(context.Background(), positions)
	require.NoError(t, err)
	// +$20 on a, -$10 on b, unknown pool contributes zero instead of a
	// guess.
	assert.InDelta(t, 10, total, 0.01)
}
