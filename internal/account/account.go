// Package account turns raw positions, prices, and multi-currency cash into
// the normalized snapshot the rest of the core plans against (spec §4.2).
package account

import (
	"math"
	"sort"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

// Snapshot validates positions/prices, reduces them to per-symbol market
// values, and normalizes by the cash-buffered effective equity. cashBufferPct
// is a fraction in [0, 1) (callers convert from the configured percent via
// config.RebalanceConfig.CashBufferFraction).
func Snapshot(
	positions map[string]float64,
	prices map[string]float64,
	cashBalances map[string]float64,
	cashBufferPct float64,
) (domain.AccountSnapshot, error) {
	marketValues := make(map[string]float64, len(positions))
	var netPosVal, grossPosVal float64

	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		qty := positions[symbol]
		if qty == 0 {
			return domain.AccountSnapshot{}, errs.NewRuntimeError("position %s has zero quantity", symbol)
		}
		price, ok := prices[symbol]
		if !ok || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return domain.AccountSnapshot{}, errs.NewRuntimeError("missing or invalid price for %s", symbol)
		}
		mv := qty * price
		marketValues[symbol] = mv
		netPosVal += mv
		grossPosVal += math.Abs(mv)
	}

	usdCash := cashBalances["USD"]
	effectiveUSDCash := usdCash * (1 - cashBufferPct)
	effectiveEquity := netPosVal + effectiveUSDCash
	if effectiveEquity <= 0 {
		return domain.AccountSnapshot{}, errs.NewRuntimeError("account has non-positive effective equity")
	}

	weights := make(map[string]float64, len(marketValues)+1)
	for symbol, mv := range marketValues {
		weights[symbol] = mv / effectiveEquity
	}
	weights[domain.CashSymbol] = effectiveUSDCash / effectiveEquity

	fundingCash := make(map[string]float64, len(cashBalances))
	for currency, amount := range cashBalances {
		if currency == "USD" {
			continue
		}
		fundingCash[currency] = amount
	}

	allCash := make(map[string]float64, len(cashBalances))
	for currency, amount := range cashBalances {
		allCash[currency] = amount
	}

	return domain.AccountSnapshot{
		MarketValues:    marketValues,
		Weights:         weights,
		CashByCurrency:  allCash,
		USDCash:         usdCash,
		FundingCash:     fundingCash,
		TotalEquity:     netPosVal + usdCash,
		EffectiveEquity: effectiveEquity,
		Gross:           grossPosVal / effectiveEquity,
		Net:             (netPosVal + effectiveUSDCash) / effectiveEquity,
	}, nil
}
