package epoch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/storage"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/epoch"
	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidateStartup_FirstBootDefaults(t *testing.T) {
	m := epoch.NewManager(newStore(t))

	d, err := m.ValidateStartupConditions(context.Background(), false, 0, 750)
	require.NoError(t, err)
	assert.True(t, d.Valid)
	assert.Equal(t, domain.BootFreshStart, d.Mode)
	assert.InDelta(t, 750, d.StartingCapitalUSD, 0.001)
	assert.Empty(t, d.ParentRunID)
}

func TestValidateStartup_FreshCapitalNoOpenPositions(t *testing.T) {
	m := epoch.NewManager(newStore(t))

	d, err := m.ValidateStartupConditions(context.Background(), true, 5000, 750)
	require.NoError(t, err)
	assert.True(t, d.Valid)
	assert.Equal(t, domain.BootFreshStart, d.Mode)
	assert.InDelta(t, 5000, d.StartingCapitalUSD, 0.001)
}

// Fresh capital while prior open exposure exists is the operator's problem
// to resolve, never the bot's to guess at.
func TestValidateStartup_HybridBlocked(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePosition(ctx, domain.Position{
		TradeID:     "stale",
		Pool:        "SOL-USDC-bin25",
		Tier:        domain.TierCore,
		NotionalUSD: 500,
		OpenedAt:    time.Now().UTC().Add(-time.Hour),
	}, "old-run"))

	m := epoch.NewManager(s)
	d, err := m.ValidateStartupConditions(ctx, true, 5000, 750)
	require.NoError(t, err)
	assert.False(t, d.Valid)
	assert.Equal(t, domain.BootHybridBlock, d.Mode)
	assert.Contains(t, d.Reason, "open position")

	_, err = m.InitializeRunEpoch(ctx, d)
	assert.ErrorIs(t, err, domain.ErrHybridStateBlocked)
}

func TestValidateStartup_ContinuationInheritsNetEquity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	prior := domain.RunEpoch{
		RunID:              domain.NewRunID(),
		StartedAt:          time.Now().UTC().Add(-time.Hour),
		StartingCapitalUSD: 1000,
		Status:             domain.EpochActive,
	}
	require.NoError(t, s.SaveRunEpoch(ctx, prior))
	require.NoError(t, s.SaveCapitalState(ctx, domain.CapitalRecord{
		InitialCapital:   1000,
		AvailableBalance: 980,
		LockedBalance:    45,
		TotalRealizedPnL: 25,
	}))

	m := epoch.NewManager(s)
	d, err := m.ValidateStartupConditions(ctx, false, 0, 750)
	require.NoError(t, err)
	assert.True(t, d.Valid)
	assert.Equal(t, domain.BootContinuation, d.Mode)
	assert.Equal(t, prior.RunID, d.ParentRunID)
	// available + locked from the prior run's persisted state
	assert.InDelta(t, 1025, d.StartingCapitalUSD, 0.001)
}

func TestInitializeRunEpoch_ClosesParentAndRunsOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	prior := domain.RunEpoch{
		RunID:              domain.NewRunID(),
		StartedAt:          time.Now().UTC().Add(-time.Hour),
		StartingCapitalUSD: 1000,
		Status:             domain.EpochActive,
	}
	require.NoError(t, s.SaveRunEpoch(ctx, prior))

	m := epoch.NewManager(s)
	d, err := m.ValidateStartupConditions(ctx, false, 0, 750)
	require.NoError(t, err)

	e, err := m.InitializeRunEpoch(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, e.RunID, m.ActiveRunID())
	assert.Equal(t, prior.RunID, e.ParentRunID)

	latest, err := s.LatestRunEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.RunID, latest.RunID)

	// Second initialization in the same process is refused.
	_, err = m.InitializeRunEpoch(ctx, d)
	assert.Error(t, err)
}

// Closed trades tagged with another run's id must not leak into this run's
// realized PnL.
func TestRealizedPnL_FreshStartIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := domain.TradeRecord{
		ID:            "old-trade",
		Pool:          "SOL-USDC-bin25",
		Status:        domain.TradeClosed,
		EntryValueUSD: 100,
		ExitValueUSD:  180,
		PnLNet:        80,
		RunID:         "previous-run",
		CreatedAt:     time.Now().UTC().Add(-2 * time.Hour),
	}
	now := time.Now().UTC()
	old.ExitTime = &now
	require.NoError(t, s.SaveTrade(ctx, old))

	m := epoch.NewManager(s)
	d, err := m.ValidateStartupConditions(ctx, true, 1000, 0)
	require.NoError(t, err)
	_, err = m.InitializeRunEpoch(ctx, d)
	require.NoError(t, err)

	realized, err := m.RealizedPnLThisRun(ctx)
	require.NoError(t, err)
	assert.Zero(t, realized)

	equity, err := m.NetEquityThisRun(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000, equity, 0.001)
}

func TestSanityCheckEquity(t *testing.T) {
	// netEquity 1200 cannot come from 1000 starting + 50 max unrealized.
	err := epoch.SanityCheckEquity(1200, 1000, 50, 0.01)
	assert.ErrorIs(t, err, domain.ErrPhantomEquity)

	assert.NoError(t, epoch.SanityCheckEquity(1049, 1000, 50, 0.01))
	assert.NoError(t, epoch.SanityCheckEquity(1050, 1000, 50, 0.01))
}
