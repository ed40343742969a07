package reconcile

// pnl.go — periodic drift detection between the ledger's cached realized
// PnL and a fresh aggregation of closed trades. The store is always the
// authoritative side.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/application/epoch"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/ledger"
	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
	"github.com/032383justin/dlmm-bot-sub006/internal/ports"
)

// TradePnL is the per-trade breakdown of a realized-PnL aggregation.
type TradePnL struct {
	TradeID     string
	Pool        string
	GrossUSD    float64
	FeesUSD     float64
	SlippageUSD float64
	NetUSD      float64
}

// RealizedReport aggregates closed trades for the active run.
type RealizedReport struct {
	Trades        []TradePnL
	TotalGrossUSD float64
	TotalFeesUSD  float64
	TotalSlipUSD  float64
	TotalNetUSD   float64
	Wins          int
	Losses        int
}

// DriftReport is the outcome of one drift check.
type DriftReport struct {
	HasDrift  bool
	DriftUSD  float64
	CachedUSD float64
	StoreUSD  float64
	InGrace   bool
}

// PnLService compares cached and store-derived realized PnL and corrects
// drift, and marks open positions to market for unrealized PnL.
type PnLService struct {
	store   ports.Store
	epochs  *epoch.Manager
	book    *ledger.Ledger
	prices  ports.PriceProvider
	startup *Startup
	grace   time.Duration
	log     *slog.Logger
}

// NewPnLService creates the drift watcher. grace is how long after a
// startup reconciliation drift is logged but not auto-corrected — the
// reconciler's fresh output is already authoritative, and a second
// corrector racing it would be redundant noise.
func NewPnLService(store ports.Store, epochs *epoch.Manager, book *ledger.Ledger, prices ports.PriceProvider, startup *Startup, grace time.Duration) *PnLService {
	return &PnLService{
		store: store, epochs: epochs, book: book,
		prices: prices, startup: startup, grace: grace,
		log: slog.Default(),
	}
}

// ComputeRealizedPnLFromStore walks closed trades scoped to the active
// run. This is always the authoritative realized-PnL value.
func (s *PnLService) ComputeRealizedPnLFromStore(ctx context.Context, since *time.Time) (RealizedReport, error) {
	runID := s.epochs.ActiveRunID()
	if runID == "" {
		return RealizedReport{}, fmt.Errorf("reconcile.ComputeRealizedPnLFromStore: no active run")
	}

	trades, err := s.store.GetClosedTradesByRun(ctx, runID, since)
	if err != nil {
		return RealizedReport{}, fmt.Errorf("reconcile.ComputeRealizedPnLFromStore: %w", err)
	}

	var rep RealizedReport
	for _, t := range trades {
		p := TradePnL{
			TradeID:     t.ID,
			Pool:        t.Pool,
			GrossUSD:    t.GrossPnL(),
			FeesUSD:     t.TotalFees(),
			SlippageUSD: t.TotalSlippage(),
			NetUSD:      t.NetPnL(),
		}
		rep.Trades = append(rep.Trades, p)
		rep.TotalGrossUSD += p.GrossUSD
		rep.TotalFeesUSD += p.FeesUSD
		rep.TotalSlipUSD += p.SlippageUSD
		rep.TotalNetUSD += p.NetUSD
		switch {
		case p.NetUSD > 0:
			rep.Wins++
		case p.NetUSD < 0:
			rep.Losses++
		}
	}
	return rep, nil
}

// ComputeUnrealizedPnL marks the given open positions to market against
// current pool prices. Positions whose price cannot be fetched contribute
// zero rather than a guess.
func (s *PnLService) ComputeUnrealizedPnL(ctx context.Context, positions []domain.Position) (float64, error) {
	var total float64
	for _, p := range positions {
		if p.EntryPrice <= 0 {
			continue
		}
		price, err := s.prices.PoolPrice(ctx, p.Pool)
		if err != nil {
			s.log.Warn("PNL-AUDIT: mark price unavailable, counting zero unrealized",
				"pool", p.Pool, "trade_id", p.TradeID, "err", err)
			continue
		}
		total += (price/p.EntryPrice - 1) * p.NotionalUSD
	}
	return total, nil
}

// Reconcile compares the ledger's cached realized PnL against the
// store-derived value. A store with no trade history is authoritative over
// a nonzero cache: that cache is drift to be reset.
func (s *PnLService) Reconcile(ctx context.Context, driftThresholdUSD float64) (DriftReport, error) {
	rep, err := s.ComputeRealizedPnLFromStore(ctx, nil)
	if err != nil {
		return DriftReport{}, err
	}

	cached := s.book.RealizedPnL()
	drift := rep.TotalNetUSD - cached

	out := DriftReport{
		DriftUSD:  drift,
		CachedUSD: cached,
		StoreUSD:  rep.TotalNetUSD,
		HasDrift:  math.Abs(drift) > driftThresholdUSD,
		InGrace:   s.inGrace(),
	}
	if len(rep.Trades) == 0 && cached != 0 {
		out.HasDrift = true
	}

	if out.HasDrift {
		s.log.Warn("PNL-AUDIT: realized PnL drift detected",
			"cached", cached, "store", rep.TotalNetUSD, "drift", drift,
			"trades", len(rep.Trades), "grace", out.InGrace)
	}
	return out, nil
}

// CorrectDrift overwrites the cached realized-PnL figure with the
// store-derived value.
func (s *PnLService) CorrectDrift(ctx context.Context) error {
	rep, err := s.ComputeRealizedPnLFromStore(ctx, nil)
	if err != nil {
		return err
	}
	before := s.book.RealizedPnL()
	s.book.SetRealizedPnL(rep.TotalNetUSD)
	s.log.Info("PNL-AUDIT: drift corrected",
		"before", before, "after", rep.TotalNetUSD,
		"trades", len(rep.Trades), "wins", rep.Wins, "losses", rep.Losses)
	return nil
}

// Run performs one reconciliation pass, auto-correcting outside the grace
// period. Suitable for a ticker loop.
func (s *PnLService) Run(ctx context.Context, driftThresholdUSD float64) error {
	rep, err := s.Reconcile(ctx, driftThresholdUSD)
	if err != nil {
		return err
	}
	if rep.HasDrift && !rep.InGrace {
		return s.CorrectDrift(ctx)
	}
	return nil
}

func (s *PnLService) inGrace() bool {
	if s.startup == nil || s.grace <= 0 {
		return false
	}
	done := s.startup.CompletedAt()
	return !done.IsZero() && time.Since(done) < s.grace
}
