package reconcile

// Package reconcile repairs accounting state after an arbitrary, possibly
// mid-write, termination and keeps it honest afterwards. The Startup
// reconciler runs exactly once per process, before any trading begins;
// PnLService then watches for silent drift on a cadence.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/application/epoch"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/ledger"
	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
	"github.com/032383justin/dlmm-bot-sub006/internal/ports"
)

// runState is the one-shot lifecycle of the startup reconciler. A single
// mutation point guards every transition, so even two concurrent Run calls
// during startup cannot both perform recovery.
type runState int

const (
	stateNotStarted runState = iota
	stateRunning
	stateCompleted
)

// Startup derives ground truth from the durable store and seeds the
// ledger. After completion, further Run calls only recompute the derived
// snapshot.
type Startup struct {
	store  ports.Store
	epochs *epoch.Manager
	book   *ledger.Ledger
	log    *slog.Logger

	mu          sync.Mutex
	state       runState
	completedAt time.Time
	summary     domain.RecoverySummary
}

// NewStartup creates the startup reconciler.
func NewStartup(store ports.Store, epochs *epoch.Manager, book *ledger.Ledger) *Startup {
	return &Startup{store: store, epochs: epochs, book: book, log: slog.Default()}
}

// CompletedAt returns when reconciliation finished, zero if it has not.
func (r *Startup) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// Run executes the full recovery sequence. Any invariant violation in the
// final numbers is returned as an error and must abort startup — the
// process must not trade on capital that does not balance.
func (r *Startup) Run(ctx context.Context, mode domain.BootMode) (domain.RecoverySummary, error) {
	r.mu.Lock()
	switch r.state {
	case stateRunning:
		r.mu.Unlock()
		return domain.RecoverySummary{}, fmt.Errorf("reconcile.Run: already running")
	case stateCompleted:
		r.mu.Unlock()
		return r.refreshSnapshot(ctx)
	}
	r.state = stateRunning
	r.mu.Unlock()

	sum, err := r.run(ctx, mode)

	r.mu.Lock()
	if err != nil {
		r.state = stateNotStarted
	} else {
		r.state = stateCompleted
		r.completedAt = time.Now().UTC()
		r.summary = sum
	}
	r.mu.Unlock()
	return sum, err
}

func (r *Startup) run(ctx context.Context, mode domain.BootMode) (domain.RecoverySummary, error) {
	active, ok := r.epochs.ActiveEpoch()
	if !ok {
		return domain.RecoverySummary{}, fmt.Errorf("reconcile.run: no active run epoch")
	}
	sum := domain.RecoverySummary{Mode: mode, RunID: active.RunID}
	now := time.Now().UTC()

	// Step 1: force-close everything left open by the previous lifetime.
	// No live execution context exists for these, so each gets a recovery
	// exit: PnL exactly zero, distinct exit reason, lock released.
	openTrades, err := r.store.GetOpenTrades(ctx)
	if err != nil {
		return sum, fmt.Errorf("reconcile.run: list open trades: %w", err)
	}
	for _, t := range openTrades {
		if err := r.store.ForceCloseTrade(ctx, t.ID, domain.ExitReasonRecovery, now); err != nil {
			return sum, fmt.Errorf("reconcile.run: force close trade %s: %w", t.ID, err)
		}
		if err := r.store.ReleaseCapitalLock(ctx, t.ID); err != nil {
			r.log.Warn("reconcile: release lock failed, orphan sweep will retry", "trade_id", t.ID, "err", err)
		}
		sum.TradesSwept++
		sum.CapitalReleasedUSD += t.EntryValueUSD
	}

	openPositions, err := r.store.GetOpenPositions(ctx)
	if err != nil {
		return sum, fmt.Errorf("reconcile.run: list open positions: %w", err)
	}
	for _, p := range openPositions {
		if err := r.store.ClosePosition(ctx, p.TradeID, domain.ExitReasonRecovery, 0, now); err != nil {
			return sum, fmt.Errorf("reconcile.run: close position %s: %w", p.TradeID, err)
		}
		sum.PositionsRecovered++
	}

	// Step 2: no trades remain open, so every surviving lock is an orphan.
	cleared, err := r.store.ClearOrphanedLocks(ctx, nil)
	if err != nil {
		// Missing lock rows are safe to treat as zero.
		r.log.Warn("reconcile: orphan lock sweep failed, treating locks as zero", "err", err)
	}
	sum.LocksCleared = cleared

	// Step 3: derive capital purely from durable aggregates. A stale cache
	// is exactly the failure mode this exists to prevent.
	snap, err := r.deriveSnapshot(ctx, active)
	if err != nil {
		return sum, err
	}

	// Step 4: a fresh run must not inherit economic history.
	if mode == domain.BootFreshStart {
		snap.TotalRealizedPnL = 0
		snap.TotalLockedCapital = 0
		snap.OpenPositionCount = 0
	}
	sum.Snapshot = snap

	// Step 5: the final numbers must balance or the boot aborts.
	total := snap.InitialCapital + snap.TotalRealizedPnL
	available := total - snap.TotalLockedCapital
	if err := validateDerived(snap, total, available); err != nil {
		return sum, err
	}
	if err := epoch.SanityCheckEquity(available+snap.TotalLockedCapital,
		active.StartingCapitalUSD, snap.TotalUnrealizedPnL, domain.CapitalTolerance); err != nil {
		return sum, fmt.Errorf("reconcile.run: %w", err)
	}

	// Step 6: persist ground truth and seed the ledger through the bulk
	// path.
	if err := r.store.SaveCapitalState(ctx, domain.CapitalRecord{
		InitialCapital:   snap.InitialCapital,
		AvailableBalance: available,
		LockedBalance:    snap.TotalLockedCapital,
		TotalRealizedPnL: snap.TotalRealizedPnL,
	}); err != nil {
		return sum, fmt.Errorf("reconcile.run: persist capital state: %w", err)
	}
	if err := r.book.SyncFromExternal(nil, total, snap.TotalLockedCapital, snap.TotalRealizedPnL); err != nil {
		return sum, fmt.Errorf("reconcile.run: seed ledger: %w", err)
	}

	sum.FinalTotalUSD = total
	sum.FinalAvailableUSD = available
	sum.FinalLockedUSD = snap.TotalLockedCapital

	r.log.Info("RECONCILE-SUMMARY",
		"run_id", sum.RunID, "mode", string(mode),
		"positions_recovered", sum.PositionsRecovered,
		"trades_swept", sum.TradesSwept,
		"locks_cleared", sum.LocksCleared,
		"capital_released", sum.CapitalReleasedUSD,
		"total", sum.FinalTotalUSD,
		"available", sum.FinalAvailableUSD,
		"locked", sum.FinalLockedUSD)
	return sum, nil
}

// deriveSnapshot recomputes the capital snapshot from durable aggregates
// only.
func (r *Startup) deriveSnapshot(ctx context.Context, active domain.RunEpoch) (domain.CapitalSnapshot, error) {
	var snap domain.CapitalSnapshot
	snap.InitialCapital = active.StartingCapitalUSD

	closed, err := r.store.GetClosedTradesByRun(ctx, active.RunID, nil)
	if err != nil {
		return snap, fmt.Errorf("reconcile.deriveSnapshot: closed trades: %w", err)
	}
	for _, t := range closed {
		snap.TotalRealizedPnL += t.PnLNet
	}

	open, err := r.store.GetOpenPositions(ctx)
	if err != nil {
		return snap, fmt.Errorf("reconcile.deriveSnapshot: open positions: %w", err)
	}
	snap.OpenPositionCount = len(open)

	locks, err := r.store.GetCapitalLocks(ctx)
	if err != nil {
		r.log.Warn("reconcile: lock rows unavailable, treating as zero", "err", err)
	}
	for _, l := range locks {
		snap.TotalLockedCapital += l.AmountUSD
	}
	return snap, nil
}

// refreshSnapshot serves post-completion Run calls: derived state only, no
// recovery is repeated.
func (r *Startup) refreshSnapshot(ctx context.Context) (domain.RecoverySummary, error) {
	active, ok := r.epochs.ActiveEpoch()
	if !ok {
		return domain.RecoverySummary{}, fmt.Errorf("reconcile.refreshSnapshot: no active run epoch")
	}
	snap, err := r.deriveSnapshot(ctx, active)
	if err != nil {
		return domain.RecoverySummary{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sum := r.summary
	sum.Snapshot = snap
	r.summary = sum
	return sum, nil
}

// validateDerived checks the reconciled numbers before they are allowed to
// seed the ledger.
func validateDerived(snap domain.CapitalSnapshot, total, available float64) error {
	var violations []string
	if snap.InitialCapital <= 0 {
		violations = append(violations,
			fmt.Sprintf("initial capital %.2f is not positive", snap.InitialCapital))
	}
	if total <= 0 {
		violations = append(violations,
			fmt.Sprintf("total capital %.2f is not positive", total))
	}
	if snap.TotalLockedCapital < -domain.CapitalTolerance {
		violations = append(violations,
			fmt.Sprintf("locked capital %.2f is negative", snap.TotalLockedCapital))
	}
	if snap.OpenPositionCount != 0 {
		violations = append(violations,
			fmt.Sprintf("%d positions still open after recovery", snap.OpenPositionCount))
	}
	if sum := available + snap.TotalLockedCapital; math.Abs(sum-total) > domain.CapitalTolerance {
		violations = append(violations,
			fmt.Sprintf("available+locked=%.2f != total=%.2f", sum, total))
	}
	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("reconcile.validateDerived: %v (initial=%.2f realized=%.2f locked=%.2f): %w",
		violations, snap.InitialCapital, snap.TotalRealizedPnL, snap.TotalLockedCapital,
		domain.ErrInvariantViolation)
}
