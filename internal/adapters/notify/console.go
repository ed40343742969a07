package notify

// Console renders accounting state to stdout for the human watching the
// bot. It is the only consumer-facing surface besides the audit log.

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

// Console implements ports.Notifier.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// ReconcileSummary prints the startup recovery report.
func (c *Console) ReconcileSummary(sum domain.RecoverySummary) {
	fmt.Fprintf(c.out, "\n=== STARTUP RECONCILIATION (%s, run %s) ===\n", sum.Mode, sum.RunID)

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Positions recovered", fmt.Sprintf("%d", sum.PositionsRecovered))
	table.Append("Trades swept", fmt.Sprintf("%d", sum.TradesSwept))
	table.Append("Locks cleared", fmt.Sprintf("%d", sum.LocksCleared))
	table.Append("Capital released", fmt.Sprintf("$%.2f", sum.CapitalReleasedUSD))
	table.Append("Realized PnL (run)", fmt.Sprintf("$%.2f", sum.Snapshot.TotalRealizedPnL))
	table.Append("Total capital", fmt.Sprintf("$%.2f", sum.FinalTotalUSD))
	table.Append("Available", fmt.Sprintf("$%.2f", sum.FinalAvailableUSD))
	table.Append("Locked", fmt.Sprintf("$%.2f", sum.FinalLockedUSD))
	table.Render()
}

// PortfolioSnapshot prints current capital and the open position table.
func (c *Console) PortfolioSnapshot(state domain.CapitalState, positions []domain.Position) {
	fmt.Fprintf(c.out, "\nCapital: total $%.2f | deployed $%.2f | available $%.2f | locked $%.2f\n",
		state.TotalUSD, state.DeployedUSD, state.AvailableUSD, state.LockedUSD)

	if len(positions) == 0 {
		fmt.Fprintln(c.out, "No open positions.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Trade", "Pool", "Tier", "Notional", "Opened")
	for i, p := range positions {
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(p.TradeID, 12),
			truncate(p.Pool, 16),
			string(p.Tier),
			fmt.Sprintf("$%.2f", p.NotionalUSD),
			p.OpenedAt.Format("01-02 15:04"),
		)
	}
	table.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
