// Package executor drives the only stateful subsystem in the core: it takes
// already-built orders and a Broker Adapter and carries out the strict
// FX -> SELL -> BUY submission sequence spec §4.7 requires, including
// concurrency-capped batching, fill matching, cancellation of stragglers,
// and leverage-aware buy scaling.
package executor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

// Request bundles everything Execute needs for a single run.
type Request struct {
	FXOrders   []domain.Order
	SellOrders []domain.Order
	BuyOrders  []domain.Order

	FXPlan *domain.FxPlan // nil if no conversion was needed

	// AvailableCash is the cash available for purchases before sell proceeds
	// are counted. nil disables buy scaling entirely.
	AvailableCash *float64
	MaxLeverage   float64

	Gate *SafetyGate // optional supplemental buy-cooldown/duplicate guard

	// PreviousFills carries fills observed on an earlier, interrupted run of
	// the same order set. Orders they match are neither re-submitted to the
	// adapter nor re-counted against buying power; their fills are folded
	// into the result as-is. A fill's identity for deduplication is its
	// order-id when present, else (symbol, side, quantity).
	PreviousFills []domain.Fill
}

func fillIdentity(f domain.Fill) string {
	if f.OrderID != "" {
		return "id:" + f.OrderID
	}
	return orderIdentity(domain.Order{Contract: f.Contract, Side: f.Side, Quantity: f.Quantity})
}

func orderIdentity(o domain.Order) string {
	return fmt.Sprintf("sq:%s|%s|%v", o.Contract.Symbol, o.Side, o.Quantity)
}

// splitAlreadyFilled removes orders matching a previously observed fill so a
// retried run neither re-submits them nor double-counts their proceeds.
// Previous fills are deduplicated by identity (the fill's order-id when
// present, else symbol/side/quantity) and then consumed greedily against the
// order list by (symbol, side, quantity).
func splitAlreadyFilled(orders []domain.Order, previous []domain.Fill) (remaining []domain.Order, already []domain.Fill) {
	seen := make(map[string]struct{}, len(previous))
	pool := make([]domain.Fill, 0, len(previous))
	for _, f := range previous {
		id := fillIdentity(f)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, f)
	}

	consumed := make([]bool, len(pool))
	for _, o := range orders {
		matched := false
		for i, f := range pool {
			if consumed[i] {
				continue
			}
			if f.Contract.Symbol == o.Contract.Symbol && f.Side == o.Side && f.Quantity == o.Quantity {
				consumed[i] = true
				already = append(already, f)
				matched = true
				break
			}
		}
		if !matched {
			remaining = append(remaining, o)
		}
	}
	return remaining, already
}

// Execute runs orders through adapter in FX -> SELL -> BUY order, respecting
// opts.ConcurrencyCap within each group. When opts.ReportOnly or opts.DryRun
// is set it returns the concatenated planned orders without touching the
// adapter; otherwise planned is nil and the accumulated ExecutionResult is
// returned. Safety preconditions are checked in both modes.
func Execute(adapter domain.BrokerAdapter, req Request, opts Options, now time.Time) (domain.ExecutionResult, []domain.Order, error) {
	if safetyErr := checkPreconditions(opts, now); safetyErr != nil {
		return domain.ExecutionResult{}, nil, safetyErr
	}

	if opts.ReportOnly || opts.DryRun {
		return domain.ExecutionResult{}, concatOrders(req.FXOrders, req.SellOrders, req.BuyOrders), nil
	}

	result := domain.ExecutionResult{}

	fxOrders, fxAlready := splitAlreadyFilled(req.FXOrders, req.PreviousFills)
	result.Fills = append(result.Fills, fxAlready...)

	if len(fxOrders) > 0 {
		fxResult, err := submitGroup(adapter, fxOrders, opts, req.Gate, now)
		mergeInto(&result, fxResult)
		if err != nil {
			return result, nil, err
		}
	}
	if req.FXPlan != nil && req.FXPlan.WaitForFillSeconds > 0 {
		time.Sleep(time.Duration(req.FXPlan.WaitForFillSeconds) * time.Second)
	}

	sellOrders, sellAlready := splitAlreadyFilled(req.SellOrders, req.PreviousFills)
	result.Fills = append(result.Fills, sellAlready...)
	sellResult, err := submitGroup(adapter, sellOrders, opts, req.Gate, now)
	mergeInto(&result, sellResult)
	if err != nil {
		return result, nil, err
	}
	result.SellProceeds = sellProceeds(sellAlready) + sellProceeds(sellResult.Fills)

	buyOrders, buyAlready := splitAlreadyFilled(req.BuyOrders, req.PreviousFills)
	result.Fills = append(result.Fills, buyAlready...)
	if req.AvailableCash != nil && len(buyOrders) > 0 {
		buyOrders, err = scaleBuys(buyOrders, adapter, *req.AvailableCash, req.MaxLeverage, result.SellProceeds)
		if err != nil {
			return result, nil, err
		}
	}
	buyResult, err := submitGroup(adapter, buyOrders, opts, req.Gate, now)
	mergeInto(&result, buyResult)
	if err != nil {
		return result, nil, err
	}

	return result, nil, nil
}

func concatOrders(groups ...[]domain.Order) []domain.Order {
	var all []domain.Order
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func mergeInto(dst *domain.ExecutionResult, src domain.ExecutionResult) {
	dst.Fills = append(dst.Fills, src.Fills...)
	dst.Canceled = append(dst.Canceled, src.Canceled...)
	if src.TimedOut {
		dst.TimedOut = true
	}
}

// submitGroup places orders in batches no larger than opts.ConcurrencyCap,
// waits for each batch's fills, cancels any unfilled remainder, and matches
// fills back to the orders that produced them. A wait timeout cancels the
// batch's remaining ids and marks the result timed out without failing the
// run; any other adapter error aborts.
func submitGroup(adapter domain.BrokerAdapter, orders []domain.Order, opts Options, gate *SafetyGate, now time.Time) (domain.ExecutionResult, error) {
	result := domain.ExecutionResult{}
	if len(orders) == 0 {
		return result, nil
	}

	allowed, blocked := gate.Filter(orders, now)
	result.Canceled = append(result.Canceled, blocked...)

	batchSize := opts.ConcurrencyCap
	if batchSize <= 0 {
		batchSize = len(allowed)
	}

	for start := 0; start < len(allowed); start += batchSize {
		end := start + batchSize
		if end > len(allowed) {
			end = len(allowed)
		}
		batch := allowed[start:end]

		placed := make(map[string]domain.Order, len(batch))
		ids := make([]string, 0, len(batch))
		for _, o := range batch {
			id, err := adapter.PlaceOrder(o)
			if err != nil {
				return result, translateAdapterError(err, "place order")
			}
			placed[id] = o
			ids = append(ids, id)
			gate.Observe(o, now)
		}

		timedOut := false
		fills, err := adapter.WaitForFills(ids, opts.FillWaitTimeout)
		if err != nil {
			if !errors.Is(err, errs.ErrFillWaitTimeout) {
				return result, translateAdapterError(err, "wait for fills")
			}
			fills = nil
			timedOut = true
		}
		result.Fills = append(result.Fills, fills...)

		// Match fills back to placed ids: the fill's own order-id is
		// authoritative when present, otherwise the first still-unmatched
		// order with the same (symbol, side, quantity) is consumed.
		remaining := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			remaining[id] = struct{}{}
		}
		for _, f := range fills {
			if _, ok := remaining[f.OrderID]; f.OrderID != "" && ok {
				delete(remaining, f.OrderID)
				continue
			}
			for _, id := range ids {
				if _, open := remaining[id]; !open {
					continue
				}
				o := placed[id]
				if f.Contract.Symbol == o.Contract.Symbol && f.Side == o.Side && f.Quantity == o.Quantity {
					delete(remaining, id)
					break
				}
			}
		}

		for _, id := range ids {
			if _, open := remaining[id]; !open {
				continue
			}
			if err := adapter.Cancel(id); err != nil {
				return result, translateAdapterError(err, "cancel unfilled order")
			}
			result.Canceled = append(result.Canceled, placed[id])
		}
		if timedOut {
			result.TimedOut = true
		}
	}

	return result, nil
}

func sellProceeds(fills []domain.Fill) float64 {
	total := 0.0
	for _, f := range fills {
		if f.Side == domain.SideSell {
			total += f.Quantity * f.Price
		}
	}
	return total
}

// scaleBuys derives buying power (available_cash*max_leverage + sell
// proceeds) and, if total buy notional exceeds it, scales every buy order's
// quantity down proportionally.
func scaleBuys(buys []domain.Order, adapter domain.BrokerAdapter, availableCash, maxLeverage, sellProceeds float64) ([]domain.Order, error) {
	buyingPower := availableCash*maxLeverage + sellProceeds

	total := 0.0
	for _, o := range buys {
		price, err := referencePrice(o, adapter)
		if err != nil {
			return nil, err
		}
		total += o.Quantity * price
	}

	if total <= 0 || total <= buyingPower {
		return buys, nil
	}

	scale := buyingPower / total
	scaled := make([]domain.Order, len(buys))
	for i, o := range buys {
		o.Quantity = o.Quantity * scale
		scaled[i] = o
	}
	return scaled, nil
}

func referencePrice(o domain.Order, adapter domain.BrokerAdapter) (float64, error) {
	if o.LimitPrice != nil {
		return *o.LimitPrice, nil
	}
	quote, err := adapter.GetQuote(o.Contract.Symbol)
	if err != nil {
		return 0, translateAdapterError(err, "quote for buy notional")
	}
	if o.Side == domain.SideBuy && quote.Ask != nil {
		return *quote.Ask, nil
	}
	if o.Side == domain.SideSell && quote.Bid != nil {
		return *quote.Bid, nil
	}
	if quote.Last != nil {
		return *quote.Last, nil
	}
	return 0, errs.NewRuntimeError("cannot determine notional for %s", o.Contract.Symbol)
}

func translateAdapterError(err error, context string) error {
	var pacing *errs.PacingError
	var resolution *errs.ResolutionError
	var connection *errs.ConnectionError
	var execution *errs.ExecutionError
	switch {
	case errors.As(err, &pacing), errors.As(err, &resolution), errors.As(err, &connection), errors.As(err, &execution):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, os.ErrDeadlineExceeded) {
		return errs.NewConnectionError(err, context)
	}
	return errs.NewExecutionError(err, context)
}
