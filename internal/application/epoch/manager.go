package epoch

// Package epoch scopes all accounting to one bot run. A new epoch is
// created at every boot; run-scoped queries are what keep a previous
// process lifetime's PnL from leaking into current balances.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
	"github.com/032383justin/dlmm-bot-sub006/internal/ports"
)

// StartupDecision is the outcome of ValidateStartupConditions.
type StartupDecision struct {
	Valid              bool
	Mode               domain.BootMode
	StartingCapitalUSD float64
	ParentRunID        string
	Reason             string
}

// Manager owns the active run epoch. Exactly one epoch is active per
// process; InitializeRunEpoch may be called once.
type Manager struct {
	store ports.Store
	log   *slog.Logger

	mu     sync.Mutex
	active *domain.RunEpoch
}

// NewManager creates an epoch manager over the given store.
func NewManager(store ports.Store) *Manager {
	return &Manager{store: store, log: slog.Default()}
}

// ValidateStartupConditions decides the boot mode.
//
// Fresh capital plus open positions from a prior run is a deliberate hard
// stop: silently discarding open economic exposure is unacceptable, so the
// operator must resolve the conflict by hand.
func (m *Manager) ValidateStartupConditions(ctx context.Context, freshCapitalProvided bool, amountUSD, defaultCapitalUSD float64) (StartupDecision, error) {
	prior, err := m.store.LatestRunEpoch(ctx)
	if err != nil {
		return StartupDecision{}, fmt.Errorf("epoch.ValidateStartupConditions: latest epoch: %w", err)
	}
	openPositions, err := m.store.GetOpenPositions(ctx)
	if err != nil {
		return StartupDecision{}, fmt.Errorf("epoch.ValidateStartupConditions: open positions: %w", err)
	}

	if freshCapitalProvided {
		if amountUSD <= 0 {
			return StartupDecision{}, fmt.Errorf("epoch.ValidateStartupConditions: fresh capital %.2f: %w",
				amountUSD, domain.ErrInvalidCapital)
		}
		if len(openPositions) > 0 {
			return StartupDecision{
				Mode: domain.BootHybridBlock,
				Reason: fmt.Sprintf("fresh capital $%.2f provided but %d open position(s) exist from a prior run",
					amountUSD, len(openPositions)),
			}, nil
		}
		return StartupDecision{
			Valid:              true,
			Mode:               domain.BootFreshStart,
			StartingCapitalUSD: amountUSD,
		}, nil
	}

	if prior != nil {
		state, err := m.store.LoadCapitalState(ctx)
		if err != nil {
			return StartupDecision{}, fmt.Errorf("epoch.ValidateStartupConditions: capital state: %w", err)
		}
		starting := state.AvailableBalance + state.LockedBalance
		if starting <= 0 {
			// Prior epoch never persisted usable capital; inherit its
			// declared starting capital instead.
			starting = prior.StartingCapitalUSD
		}
		return StartupDecision{
			Valid:              true,
			Mode:               domain.BootContinuation,
			StartingCapitalUSD: starting,
			ParentRunID:        prior.RunID,
		}, nil
	}

	return StartupDecision{
		Valid:              true,
		Mode:               domain.BootFreshStart,
		StartingCapitalUSD: defaultCapitalUSD,
	}, nil
}

// InitializeRunEpoch persists the new epoch, closes the parent if
// continuing, and sets the process-wide active run exactly once.
func (m *Manager) InitializeRunEpoch(ctx context.Context, d StartupDecision) (domain.RunEpoch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return *m.active, fmt.Errorf("epoch.InitializeRunEpoch: run %s already active", m.active.RunID)
	}
	if !d.Valid {
		return domain.RunEpoch{}, fmt.Errorf("epoch.InitializeRunEpoch: %s: %w",
			d.Reason, domain.ErrHybridStateBlocked)
	}

	e := domain.RunEpoch{
		RunID:              domain.NewRunID(),
		StartedAt:          time.Now().UTC(),
		StartingCapitalUSD: d.StartingCapitalUSD,
		ParentRunID:        d.ParentRunID,
		Status:             domain.EpochActive,
	}
	if err := m.store.SaveRunEpoch(ctx, e); err != nil {
		return domain.RunEpoch{}, fmt.Errorf("epoch.InitializeRunEpoch: persist: %w", err)
	}
	if d.ParentRunID != "" {
		if err := m.store.CloseRunEpoch(ctx, d.ParentRunID); err != nil {
			return domain.RunEpoch{}, fmt.Errorf("epoch.InitializeRunEpoch: close parent %s: %w", d.ParentRunID, err)
		}
	}

	m.active = &e
	m.log.Info("epoch: run initialized",
		"run_id", e.RunID, "mode", string(d.Mode),
		"starting_capital", e.StartingCapitalUSD, "parent", d.ParentRunID)
	return e, nil
}

// ActiveRunID returns the active run id, or "" before initialization.
func (m *Manager) ActiveRunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.RunID
}

// ActiveEpoch returns a copy of the active epoch.
func (m *Manager) ActiveEpoch() (domain.RunEpoch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return domain.RunEpoch{}, false
	}
	return *m.active, true
}

// CloseActiveEpoch marks the active epoch closed at graceful shutdown.
func (m *Manager) CloseActiveEpoch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	if err := m.store.CloseRunEpoch(ctx, m.active.RunID); err != nil {
		return fmt.Errorf("epoch.CloseActiveEpoch: %w", err)
	}
	m.active.Status = domain.EpochClosed
	m.log.Info("epoch: run closed", "run_id", m.active.RunID)
	return nil
}

// RealizedPnLThisRun sums net PnL over closed trades scoped to the active
// run.
func (m *Manager) RealizedPnLThisRun(ctx context.Context) (float64, error) {
	runID := m.ActiveRunID()
	if runID == "" {
		return 0, fmt.Errorf("epoch.RealizedPnLThisRun: no active run")
	}
	trades, err := m.store.GetClosedTradesByRun(ctx, runID, nil)
	if err != nil {
		return 0, fmt.Errorf("epoch.RealizedPnLThisRun: %w", err)
	}
	total := 0.0
	for _, t := range trades {
		total += t.PnLNet
	}
	return total, nil
}

// NetEquityThisRun is starting capital plus realized PnL for the active
// run.
func (m *Manager) NetEquityThisRun(ctx context.Context) (float64, error) {
	e, ok := m.ActiveEpoch()
	if !ok {
		return 0, fmt.Errorf("epoch.NetEquityThisRun: no active run")
	}
	realized, err := m.RealizedPnLThisRun(ctx)
	if err != nil {
		return 0, err
	}
	return e.StartingCapitalUSD + realized, nil
}

// SanityCheckEquity detects phantom equity: a net equity figure that
// exceeds what this run's starting capital plus unrealized gains could
// possibly produce means prior-run accounting leaked in.
func SanityCheckEquity(netEquityUSD, startingCapitalUSD, maxUnrealizedUSD, toleranceUSD float64) error {
	limit := startingCapitalUSD + maxUnrealizedUSD + toleranceUSD
	if netEquityUSD > limit {
		return fmt.Errorf("epoch.SanityCheckEquity: net equity %.2f exceeds limit %.2f (starting %.2f + max unrealized %.2f, excess %.2f): %w",
			netEquityUSD, limit, startingCapitalUSD, maxUnrealizedUSD,
			math.Abs(netEquityUSD-limit), domain.ErrPhantomEquity)
	}
	return nil
}
