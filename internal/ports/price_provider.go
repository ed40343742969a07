package ports

import "context"

// PriceProvider returns the current mark price for a pool. Used only for
// unrealized PnL estimates — never for settlement.
type PriceProvider interface {
	PoolPrice(ctx context.Context, pool string) (float64, error)
}
