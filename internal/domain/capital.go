package domain

import "time"

// CapitalTolerance is the dollar tolerance used when comparing capital
// figures. Float arithmetic over many position mutations accumulates
// sub-cent noise; anything inside a cent is considered balanced.
const CapitalTolerance = 0.01

// CapitalState is the in-memory projection of how capital is allocated
// right now. Owned exclusively by the ledger — nothing else writes it.
type CapitalState struct {
	TotalUSD     float64
	DeployedUSD  float64 // Σ open position notional (derived)
	AvailableUSD float64 // Total - Deployed - Locked (derived)
	LockedUSD    float64
}

// CapitalSnapshot is the read-only view combining the durable aggregates.
// It is recomputed from trades + positions at reconciliation time and is
// never persisted as authoritative.
type CapitalSnapshot struct {
	InitialCapital     float64
	TotalRealizedPnL   float64
	TotalUnrealizedPnL float64
	OpenPositionCount  int
	TotalLockedCapital float64
}

// NetEquity is available + locked capital, the figure a continuation run
// inherits as its starting capital.
func (s CapitalSnapshot) NetEquity() float64 {
	return s.InitialCapital + s.TotalRealizedPnL
}

// CapitalRecord mirrors the single durable capital_state row. It is what
// the reconciler writes back after deriving ground truth; during normal
// operation it trails the in-memory CapitalState.
type CapitalRecord struct {
	InitialCapital   float64
	AvailableBalance float64
	LockedBalance    float64
	TotalRealizedPnL float64
	UpdatedAt        time.Time
}

// CapitalLock is a transient reservation against a trade that is being
// opened. Cleared on close, or by the startup orphan sweep.
type CapitalLock struct {
	TradeID   string
	AmountUSD float64
}
