package domain

import "time"

// Tier classifies how much conviction sits behind a position. Closed set —
// the ledger rejects anything else at the door.
type Tier string

const (
	TierMicro Tier = "MICRO" // probe-sized entry into an unproven pool
	TierCore  Tier = "CORE"  // standard allocation
	TierScale Tier = "SCALE" // scaled-up allocation on a proven pool
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierMicro, TierCore, TierScale:
		return true
	}
	return false
}

// Position is one open liquidity position as the ledger tracks it.
// The durable store holds a mirror keyed by the same TradeID.
type Position struct {
	TradeID     string
	Pool        string // pool address
	Tier        Tier
	NotionalUSD float64
	EntryPrice  float64
	OpenedAt    time.Time
}
