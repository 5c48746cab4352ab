package executor

import (
	"os"
	"time"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

// Options controls how Execute behaves (spec §4.7).
type Options struct {
	ReportOnly     bool
	DryRun         bool
	Yes            bool // bypasses the confirmation precondition
	ConcurrencyCap int  // <= 0 means unbatched
	PreferRTH      bool
	PaperOnly      bool
	Live           bool
	RequireConfirm bool
	KillSwitchFile string

	// FillWaitTimeout bounds each batch's WaitForFills call. nil defers to
	// the adapter's own default.
	FillWaitTimeout *time.Duration
}

func checkPreconditions(opts Options, now time.Time) *errs.SafetyError {
	if opts.KillSwitchFile != "" {
		if _, err := os.Stat(opts.KillSwitchFile); err == nil {
			return errs.NewSafetyError("kill switch engaged: %s", opts.KillSwitchFile)
		}
	}

	if opts.Live {
		return errs.NewSafetyError("live trading explicitly requested")
	}
	if !opts.PaperOnly {
		return errs.NewSafetyError("not connected to paper trading environment")
	}

	if opts.PreferRTH && !isRegularTradingHours(now) {
		return errs.NewSafetyError("outside regular trading hours")
	}

	if opts.RequireConfirm && !opts.Yes {
		return errs.NewSafetyError("confirmation rejected")
	}

	return nil
}

func isRegularTradingHours(now time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	ny := now.In(loc)
	if ny.Weekday() == time.Saturday || ny.Weekday() == time.Sunday {
		return false
	}
	minutes := ny.Hour()*60 + ny.Minute()
	return minutes >= 9*60+30 && minutes <= 16*60
}

// SafetyGate layers two supplemental, per-order checks on top of the core
// executor preconditions: a buy-side cooldown per symbol, and a duplicate
// in-flight order guard. Both are fail-safe-by-default the way the trading
// module's layered validator is: when in doubt, block the order.
type SafetyGate struct {
	// LastBuy records the most recent BUY timestamp per symbol.
	LastBuy map[string]time.Time
	// BuyCooldown is the minimum interval between BUYs of the same symbol.
	BuyCooldown time.Duration
	// InFlight holds every symbol+side with an order submitted this run.
	// Entries are not removed when the order fills or is canceled.
	InFlight map[string]struct{}
}

func inFlightKey(symbol string, side domain.Side) string {
	return symbol + "|" + string(side)
}

// Filter splits orders into those that pass the gate and those blocked by
// it. Blocked orders are reported to the caller the same way a canceled
// order is: they never reach the adapter.
func (g *SafetyGate) Filter(orders []domain.Order, now time.Time) (allowed, blocked []domain.Order) {
	if g == nil {
		return orders, nil
	}
	for _, o := range orders {
		if g.blockedByCooldown(o, now) || g.blockedByDuplicate(o) {
			blocked = append(blocked, o)
			continue
		}
		allowed = append(allowed, o)
	}
	return allowed, blocked
}

func (g *SafetyGate) blockedByCooldown(o domain.Order, now time.Time) bool {
	if o.Side != domain.SideBuy || g.BuyCooldown <= 0 || g.LastBuy == nil {
		return false
	}
	last, ok := g.LastBuy[o.Contract.Symbol]
	return ok && now.Sub(last) < g.BuyCooldown
}

func (g *SafetyGate) blockedByDuplicate(o domain.Order) bool {
	if g.InFlight == nil {
		return false
	}
	_, exists := g.InFlight[inFlightKey(o.Contract.Symbol, o.Side)]
	return exists
}

// Observe records o as in-flight for the duration of this run, and (for
// BUYs) stamps the cooldown clock.
func (g *SafetyGate) Observe(o domain.Order, now time.Time) {
	if g == nil {
		return
	}
	if g.InFlight == nil {
		g.InFlight = make(map[string]struct{})
	}
	g.InFlight[inFlightKey(o.Contract.Symbol, o.Side)] = struct{}{}
	if o.Side == domain.SideBuy {
		if g.LastBuy == nil {
			g.LastBuy = make(map[string]time.Time)
		}
		g.LastBuy[o.Contract.Symbol] = now
	}
}
