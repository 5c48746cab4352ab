// Package planner decides which symbols to trade and at what notional,
// subject to drift triggers, leverage caps, and rounding rules (spec §4.3).
package planner

import (
	"math"
	"sort"

	"github.com/arutneva1/IB-Trade/internal/bps"
	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
)

const cashKey = domain.CashSymbol

func roundCents(value float64) float64 {
	return math.Round(value*100) / 100
}

// Bands supplies the per-symbol drift tolerance used by per_holding trigger
// mode: a scalar default plus optional per-symbol overrides.
type Bands struct {
	Default   float64
	Overrides map[string]float64
}

func (b Bands) For(symbol string) float64 {
	if b.Overrides != nil {
		if v, ok := b.Overrides[symbol]; ok {
			return v
		}
	}
	return b.Default
}

// Plan is the single-pass planner described in spec §4.3 steps 1-6. targets
// and current are symbol -> fraction-of-equity weights (CASH ignored as a
// tradable symbol). prices is symbol -> last trade price.
func Plan(
	targets map[string]float64,
	current map[string]float64,
	prices map[string]float64,
	totalEquity float64,
	cfg config.RebalanceConfig,
	bands Bands,
) domain.OrderPlan {
	symbolSet := make(map[string]struct{})
	for s := range targets {
		symbolSet[s] = struct{}{}
	}
	for s := range current {
		symbolSet[s] = struct{}{}
	}
	delete(symbolSet, cashKey)

	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	diffs := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		diffs[s] = targets[s] - current[s]
	}

	actionable := actionableSymbols(symbols, diffs, cfg, bands)

	var dropped []domain.DroppedOrder
	values := make(map[string]float64)
	order := make([]string, 0, len(actionable))
	for _, s := range actionable {
		value := roundCents(diffs[s] * totalEquity)
		if math.Abs(value) < cfg.MinOrderUSD {
			dropped = append(dropped, domain.DroppedOrder{Symbol: s, Reason: "below minimum order size"})
			continue
		}
		values[s] = value
		order = append(order, s)
	}
	if len(order) == 0 {
		return domain.OrderPlan{Dropped: dropped}
	}

	cash := current[cashKey] * totalEquity
	var gross float64
	for s, w := range current {
		if s == cashKey {
			continue
		}
		gross += w * totalEquity
	}

	var sells, buys []string
	for _, s := range order {
		if values[s] < 0 {
			sells = append(sells, s)
		} else {
			buys = append(buys, s)
		}
	}

	for _, s := range sells {
		cash -= values[s] // value negative -> increases cash
		gross += values[s]
	}

	cashBuffer := totalEquity * cfg.CashBufferFraction()
	maintBuffer := totalEquity * cfg.MaintenanceBufferFraction()
	availableLeverage := cfg.MaxLeverage*totalEquity - gross - maintBuffer
	availableCash := math.Inf(1)
	if cfg.CashBufferPct > 0 {
		availableCash = cash - cashBuffer
	}
	available := math.Min(availableLeverage, availableCash)

	var totalBuyValue float64
	for _, s := range buys {
		totalBuyValue += values[s]
	}
	scale := 1.0
	if totalBuyValue > available && totalBuyValue > 0 {
		scale = math.Max(available, 0) / totalBuyValue
	}

	for _, s := range buys {
		values[s] = values[s] * scale
		if scale < 1.0 && math.Abs(values[s]) < cfg.MinOrderUSD {
			dropped = append(dropped, domain.DroppedOrder{Symbol: s, Reason: "scaled below minimum order size"})
			delete(values, s)
		}
	}

	var planned []domain.PlannedOrder
	for _, s := range order {
		value, ok := values[s]
		if !ok {
			continue
		}
		price := prices[s]
		shares := value / price

		if !cfg.AllowFractional {
			if shares > 0 {
				shares = math.Ceil(shares)
			} else {
				shares = math.Floor(shares)
			}
		}

		if shares < 0 {
			heldShares := current[s] * totalEquity / price
			if !cfg.AllowFractional {
				heldShares = math.Floor(heldShares)
			}
			if -shares > heldShares {
				shares = -heldShares
			}
		}

		if shares == 0 {
			continue
		}
		planned = append(planned, domain.PlannedOrder{Symbol: s, Shares: shares})
	}

	return domain.OrderPlan{Orders: planned, Dropped: dropped}
}

func actionableSymbols(symbols []string, diffs map[string]float64, cfg config.RebalanceConfig, bands Bands) []string {
	switch cfg.TriggerMode {
	case config.TriggerTotalDrift:
		var totalBps float64
		for _, s := range symbols {
			totalBps += bps.ToBps(math.Abs(diffs[s]))
		}
		if totalBps <= float64(cfg.PortfolioTotalBandBps) {
			return nil
		}
		var out []string
		for _, s := range symbols {
			if diffs[s] != 0 {
				out = append(out, s)
			}
		}
		return out
	default: // TriggerPerHolding and unset
		var out []string
		for _, s := range symbols {
			band := bands.For(s)
			if band == 0 {
				band = bps.FromBps(float64(cfg.PerHoldingBandBps))
			}
			if math.Abs(diffs[s]) > band {
				out = append(out, s)
			}
		}
		return out
	}
}

// CalculateMinTradeAmount derives the notional at which transaction costs
// fall to maxCostRatio of the trade: solving fixed/trade + percent =
// maxCostRatio for trade. Used to set a cost-aware floor alongside (or in
// place of) a configured MinOrderUSD before calling Plan.
func CalculateMinTradeAmount(transactionCostFixed, transactionCostPercent, maxCostRatio float64) float64 {
	denominator := maxCostRatio - transactionCostPercent
	if denominator <= 0 {
		return 1000.0
	}
	return transactionCostFixed / denominator
}
