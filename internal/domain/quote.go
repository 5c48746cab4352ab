// Package domain holds the core data model shared by every subsystem of the
// rebalancing engine: quotes, blended targets, account snapshots, plans, and
// the orders/fills that close the loop with a broker.
package domain

import (
	"math"
	"time"

	"github.com/arutneva1/IB-Trade/internal/bps"
)

// Quote is a point-in-time bid/ask/last observation for a symbol or FX pair.
// Bid and Ask are pointers because a venue may report only one side (or
// neither, for a stale/unsubscribed symbol); Timestamp must be monotonic per
// symbol within a single run.
type Quote struct {
	Bid       *float64
	Ask       *float64
	Last      *float64
	Timestamp time.Time
}

// Mid returns the arithmetic mid of bid/ask, falling back to whichever side
// is present, and finally to Last. ok is false when no price is available at
// all.
func (q Quote) Mid() (float64, bool) {
	switch {
	case q.Bid != nil && q.Ask != nil:
		return (*q.Bid + *q.Ask) / 2, true
	case q.Bid != nil:
		return *q.Bid, true
	case q.Ask != nil:
		return *q.Ask, true
	case q.Last != nil:
		return *q.Last, true
	default:
		return 0, false
	}
}

// IsStale reports whether the quote is older than staleSeconds relative to
// now. A non-positive staleSeconds disables the check (never stale).
func (q Quote) IsStale(now time.Time, staleSeconds int) bool {
	if staleSeconds <= 0 {
		return false
	}
	return now.Sub(q.Timestamp).Seconds() > float64(staleSeconds)
}

// Valid enforces the data model invariant: if both sides are quoted, ask
// must not be below bid.
func (q Quote) Valid() bool {
	if q.Bid != nil && q.Ask != nil {
		return *q.Ask >= *q.Bid
	}
	return true
}

// SpreadBps returns the bid/ask spread in basis points of the mid price.
// ok is false when either side is missing or the mid is not finite/positive.
func (q Quote) SpreadBps() (float64, bool) {
	if q.Bid == nil || q.Ask == nil {
		return 0, false
	}
	mid := (*q.Bid + *q.Ask) / 2
	if mid <= 0 || !isFinite(mid) {
		return 0, false
	}
	return bps.ToBps((*q.Ask - *q.Bid) / mid), true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
