package ports

import "github.com/032383justin/dlmm-bot-sub006/internal/domain"

// Notifier renders accounting state for a human operator.
type Notifier interface {
	// ReconcileSummary prints the one-shot startup reconciliation report.
	ReconcileSummary(sum domain.RecoverySummary)

	// PortfolioSnapshot prints current capital and open positions.
	PortfolioSnapshot(state domain.CapitalState, positions []domain.Position)
}
