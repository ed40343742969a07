package domain

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EpochStatus is the lifecycle state of a run epoch.
type EpochStatus string

const (
	EpochActive EpochStatus = "active"
	EpochClosed EpochStatus = "closed"
)

// BootMode is the startup decision made before any accounting begins.
type BootMode string

const (
	BootFreshStart   BootMode = "fresh_start"  // ignore all prior accounting
	BootContinuation BootMode = "continuation" // inherit prior net equity
	BootHybridBlock  BootMode = "hybrid_blocked"
)

// RunEpoch is one bootstrap-to-shutdown lifetime of the bot. All durable
// accounting is tagged with its RunID so a later run can scope queries to
// its own history.
type RunEpoch struct {
	RunID              string
	StartedAt          time.Time
	StartingCapitalUSD float64
	ParentRunID        string // prior epoch, weak back-reference only
	Status             EpochStatus
}

var (
	runIDMu   sync.Mutex
	runIDMono = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewRunID returns a new run identifier. ULIDs sort by creation time, and
// the monotonic source keeps IDs minted within the same millisecond ordered.
func NewRunID() string {
	runIDMu.Lock()
	defer runIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), runIDMono).String()
}
