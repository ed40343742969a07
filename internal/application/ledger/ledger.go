package ledger

// Package ledger is the single authoritative in-memory projection of
// capital and open positions. Everything else reads capital through
// State(); nothing else is allowed to recompute it independently.
//
// Mutations run under one mutex and re-validate the capital invariants
// before returning. The cached snapshot is invalidated synchronously on
// every write and recomputed lazily on the next read.

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

// Mode controls how invariant violations during normal operation are
// handled: hard errors while developing, logged anomalies in production.
// Halting a live bot on a rounding blip is worse than flagging it.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// Ledger tracks capital allocation across open positions.
type Ledger struct {
	mu   sync.Mutex
	mode Mode
	log  *slog.Logger

	positions  map[string]domain.Position
	tierTotals map[domain.Tier]float64
	poolTotals map[string]float64

	totalUSD    float64
	lockedUSD   float64
	realizedPnL float64 // cached figure, corrected by the PnL reconciler

	snap  domain.CapitalState
	dirty bool

	initialized bool
}

// New creates an empty, uninitialized ledger.
func New(mode Mode) *Ledger {
	return &Ledger{
		mode:       mode,
		log:        slog.Default(),
		positions:  make(map[string]domain.Position),
		tierTotals: make(map[domain.Tier]float64),
		poolTotals: make(map[string]float64),
		dirty:      true,
	}
}

// Initialize resets all state and sets total capital. Must be called (or
// SyncFromExternal) before any position mutation.
func (l *Ledger) Initialize(totalCapitalUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if totalCapitalUSD <= 0 {
		return fmt.Errorf("ledger.Initialize: %.2f: %w", totalCapitalUSD, domain.ErrInvalidCapital)
	}

	l.positions = make(map[string]domain.Position)
	l.tierTotals = make(map[domain.Tier]float64)
	l.poolTotals = make(map[string]float64)
	l.totalUSD = totalCapitalUSD
	l.lockedUSD = 0
	l.realizedPnL = 0
	l.dirty = true
	l.initialized = true

	return l.assertInvariants("Initialize")
}

// Open inserts a new position. A duplicate trade id degrades to an Update.
// Opening beyond available capital is a hard error in dev mode; in prod the
// position is still recorded and the shortfall logged, since the funds were
// already committed on-chain by the time the ledger hears about it.
func (l *Ledger) Open(p domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !p.Tier.Valid() {
		return fmt.Errorf("ledger.Open: unknown tier %q", p.Tier)
	}
	if p.NotionalUSD <= 0 {
		return fmt.Errorf("ledger.Open: notional %.2f: %w", p.NotionalUSD, domain.ErrInvalidCapital)
	}

	if _, ok := l.positions[p.TradeID]; ok {
		l.log.Warn("LEDGER: duplicate open, treating as update",
			"trade_id", p.TradeID, "notional", p.NotionalUSD)
		return l.updateLocked(p.TradeID, p.NotionalUSD)
	}

	available := l.availableLocked()
	if p.NotionalUSD > available+domain.CapitalTolerance {
		if l.mode == ModeDev {
			return fmt.Errorf("ledger.Open: notional %.2f exceeds available %.2f: %w",
				p.NotionalUSD, available, domain.ErrInsufficientCapital)
		}
		l.log.Error("LEDGER: position exceeds available capital, recording anyway",
			"trade_id", p.TradeID, "notional", p.NotionalUSD, "available", available)
	}

	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	l.positions[p.TradeID] = p
	l.tierTotals[p.Tier] += p.NotionalUSD
	l.poolTotals[p.Pool] += p.NotionalUSD
	l.dirty = true

	l.log.Info("LEDGER: position opened",
		"trade_id", p.TradeID, "pool", p.Pool, "tier", string(p.Tier),
		"notional", p.NotionalUSD, "available", l.availableLocked())

	return l.assertInvariants("Open")
}

// Update resizes a tracked position in place. Unknown trade ids are a
// logged no-op.
func (l *Ledger) Update(tradeID string, newNotionalUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateLocked(tradeID, newNotionalUSD)
}

func (l *Ledger) updateLocked(tradeID string, newNotionalUSD float64) error {
	p, ok := l.positions[tradeID]
	if !ok {
		l.log.Warn("LEDGER: update for untracked position, ignoring", "trade_id", tradeID)
		return nil
	}
	if newNotionalUSD <= 0 {
		l.log.Warn("LEDGER: non-positive notional on update, ignoring",
			"trade_id", tradeID, "notional", newNotionalUSD)
		return nil
	}

	l.tierTotals[p.Tier] += newNotionalUSD - p.NotionalUSD
	l.poolTotals[p.Pool] += newNotionalUSD - p.NotionalUSD
	p.NotionalUSD = newNotionalUSD
	l.positions[tradeID] = p
	l.dirty = true

	return l.assertInvariants("Update")
}

// Close removes a position, releasing its notional back to available.
// Unknown trade ids are a logged no-op.
func (l *Ledger) Close(tradeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[tradeID]
	if !ok {
		l.log.Warn("LEDGER: close for untracked position, ignoring", "trade_id", tradeID)
		return nil
	}

	delete(l.positions, tradeID)
	l.tierTotals[p.Tier] -= p.NotionalUSD
	l.poolTotals[p.Pool] -= p.NotionalUSD
	l.dirty = true

	l.log.Info("LEDGER: position closed",
		"trade_id", tradeID, "pool", p.Pool,
		"notional", p.NotionalUSD, "available", l.availableLocked())

	return l.assertInvariants("Close")
}

// UpdateTotalCapital adjusts total capital after realized-PnL settlement.
func (l *Ledger) UpdateTotalCapital(newTotalUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if newTotalUSD <= 0 {
		return fmt.Errorf("ledger.UpdateTotalCapital: %.2f: %w", newTotalUSD, domain.ErrInvalidCapital)
	}
	l.totalUSD = newTotalUSD
	l.dirty = true
	return l.assertInvariants("UpdateTotalCapital")
}

// UpdateLockedCapital adjusts the locked amount after an external lock
// change.
func (l *Ledger) UpdateLockedCapital(newLockedUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if newLockedUSD < 0 || newLockedUSD > l.totalUSD+domain.CapitalTolerance {
		return fmt.Errorf("ledger.UpdateLockedCapital: %.2f of total %.2f: %w",
			newLockedUSD, l.totalUSD, domain.ErrInvalidCapital)
	}
	l.lockedUSD = newLockedUSD
	l.dirty = true
	return l.assertInvariants("UpdateLockedCapital")
}

// AddRealizedPnL settles a realized profit or loss into total capital and
// the cached realized-PnL figure.
func (l *Ledger) AddRealizedPnL(deltaUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.realizedPnL += deltaUSD
	l.totalUSD += deltaUSD
	l.dirty = true
	return l.assertInvariants("AddRealizedPnL")
}

// RealizedPnL returns the cached realized-PnL figure for this run.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedPnL
}

// SetRealizedPnL overwrites the cached realized-PnL figure. Used by the
// PnL reconciler after confirming drift against the store.
func (l *Ledger) SetRealizedPnL(valueUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.realizedPnL = valueUSD
}

// State returns the cached capital snapshot, recomputing it only if a
// mutation invalidated it. This is the only legitimate read path for
// capital data.
func (l *Ledger) State() domain.CapitalState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dirty {
		deployed := 0.0
		for _, p := range l.positions {
			deployed += p.NotionalUSD
		}
		l.snap = domain.CapitalState{
			TotalUSD:     l.totalUSD,
			DeployedUSD:  deployed,
			AvailableUSD: l.totalUSD - deployed - l.lockedUSD,
			LockedUSD:    l.lockedUSD,
		}
		l.dirty = false
	}
	return l.snap
}

// OpenPositions returns tracked positions ordered by open time.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Position returns a tracked position by trade id.
func (l *Ledger) Position(tradeID string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[tradeID]
	return p, ok
}

// SyncFromExternal bulk-replaces all ledger state. Used exclusively by the
// startup reconciler to seed the ledger from reconciled ground truth; a
// failed invariant check here is an error in every mode.
func (l *Ledger) SyncFromExternal(positions []domain.Position, totalCapitalUSD, lockedCapitalUSD, realizedPnLUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if totalCapitalUSD <= 0 {
		return fmt.Errorf("ledger.SyncFromExternal: total %.2f: %w", totalCapitalUSD, domain.ErrInvalidCapital)
	}

	l.positions = make(map[string]domain.Position, len(positions))
	l.tierTotals = make(map[domain.Tier]float64)
	l.poolTotals = make(map[string]float64)
	for _, p := range positions {
		l.positions[p.TradeID] = p
		l.tierTotals[p.Tier] += p.NotionalUSD
		l.poolTotals[p.Pool] += p.NotionalUSD
	}
	l.totalUSD = totalCapitalUSD
	l.lockedUSD = lockedCapitalUSD
	l.realizedPnL = realizedPnLUSD
	l.dirty = true
	l.initialized = true

	if res := l.checkLocked(); !res.Valid {
		return fmt.Errorf("ledger.SyncFromExternal: %s: %w", res.Describe(), domain.ErrInvariantViolation)
	}

	l.log.Info("LEDGER: synced from external",
		"positions", len(positions), "total", totalCapitalUSD,
		"locked", lockedCapitalUSD, "realized_pnl", realizedPnLUSD)
	return nil
}

func (l *Ledger) availableLocked() float64 {
	deployed := 0.0
	for _, p := range l.positions {
		deployed += p.NotionalUSD
	}
	return l.totalUSD - deployed - l.lockedUSD
}
