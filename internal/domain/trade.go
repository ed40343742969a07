package domain

import "time"

// TradeStatus is the lifecycle state of a durable trade record.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

// Exit reasons. ExitReasonRecovery tags positions force-closed by the
// startup reconciler so they are never mistaken for strategy exits.
const (
	ExitReasonManual   = "MANUAL"
	ExitReasonStopLoss = "STOP_LOSS"
	ExitReasonTarget   = "TARGET"
	ExitReasonRecovery = "STARTUP_RECOVERY"
)

// TradeRecord is the full economic record of one round-trip position.
// It is the source of truth for realized PnL — the ledger never recomputes
// historical PnL, only current open notional.
type TradeRecord struct {
	ID               string
	Pool             string
	Status           TradeStatus
	EntryValueUSD    float64
	ExitValueUSD     float64
	EntryFeesUSD     float64
	ExitFeesUSD      float64
	EntrySlippageUSD float64
	ExitSlippageUSD  float64
	PnLNet           float64
	ExitReason       string
	RunID            string
	CreatedAt        time.Time
	ExitTime         *time.Time
}

// GrossPnL is exit value minus entry value, before costs.
func (t TradeRecord) GrossPnL() float64 {
	return t.ExitValueUSD - t.EntryValueUSD
}

// TotalFees sums entry and exit fees.
func (t TradeRecord) TotalFees() float64 {
	return t.EntryFeesUSD + t.ExitFeesUSD
}

// TotalSlippage sums entry and exit slippage.
func (t TradeRecord) TotalSlippage() float64 {
	return t.EntrySlippageUSD + t.ExitSlippageUSD
}

// NetPnL is gross PnL minus all fees and slippage.
func (t TradeRecord) NetPnL() float64 {
	return t.GrossPnL() - t.TotalFees() - t.TotalSlippage()
}
