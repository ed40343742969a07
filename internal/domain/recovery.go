package domain

// RecoverySummary is the audit record the startup reconciler emits once it
// has made the system safe to resume.
type RecoverySummary struct {
	Mode               BootMode
	RunID              string
	PositionsRecovered int
	TradesSwept        int
	LocksCleared       int
	CapitalReleasedUSD float64
	Snapshot           CapitalSnapshot
	FinalTotalUSD      float64
	FinalAvailableUSD  float64
	FinalLockedUSD     float64
}
