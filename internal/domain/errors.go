package domain

import "errors"

// Accounting error taxonomy. Callers match with errors.Is; the concrete
// errors returned by the ledger and reconciler wrap these with context.
var (
	ErrInvalidCapital      = errors.New("invalid capital amount")
	ErrInsufficientCapital = errors.New("insufficient available capital")
	ErrDuplicatePosition   = errors.New("position already tracked")
	ErrInvariantViolation  = errors.New("capital invariant violation")
	ErrHybridStateBlocked  = errors.New("fresh capital provided while prior open positions exist")
	ErrPhantomEquity       = errors.New("phantom equity detected")
	ErrStoreUnavailable    = errors.New("durable store unavailable")
)
