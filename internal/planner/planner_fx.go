package planner

import (
	"time"

	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
	"github.com/arutneva1/IB-Trade/internal/fxengine"
)

// PlanWithFX is the FX-aware two-pass planner from spec §4.3: a hypothetical
// unconstrained-cash pass discovers the USD buy notional, the FX engine sizes
// any conversion needed to cover it, then a final pass plans against the
// account as it will look once that conversion settles.
func PlanWithFX(
	targets map[string]float64,
	current map[string]float64,
	prices map[string]float64,
	totalEquity float64,
	cfg config.RebalanceConfig,
	bands Bands,
	fxCfg config.FXConfig,
	fxQuote *domain.Quote,
	fxPrice *float64,
	fundingCash float64,
	fundingCurrency string,
	now time.Time,
) (domain.OrderPlan, domain.FxPlan, error) {
	if !supportsFunding(fxCfg.FundingCurrencies, fundingCurrency) {
		return domain.OrderPlan{}, domain.FxPlan{}, errs.NewRuntimeError("unsupported funding currency %s", fundingCurrency)
	}

	hypotheticalCfg := cfg
	hypotheticalCfg.CashBufferPct = 0 // unconstrained cash: assume the conversion covers it
	hypothetical := Plan(targets, current, prices, totalEquity, hypotheticalCfg, bands)

	var usdNeeded float64
	for _, o := range hypothetical.Orders {
		if o.Shares > 0 {
			usdNeeded += o.Shares * prices[o.Symbol]
		}
	}

	usdCash := current[cashKey] * totalEquity
	fxPlan := fxengine.PlanFXIfNeeded(usdNeeded, usdCash, fundingCash, fxQuote, fxCfg, fxPrice, fundingCurrency, now)

	finalCurrent := make(map[string]float64, len(current))
	for s, w := range current {
		finalCurrent[s] = w
	}
	if fxPlan.NeedFX {
		finalCurrent[cashKey] += fxPlan.USDNotional / totalEquity
	}

	finalPlan := Plan(targets, finalCurrent, prices, totalEquity, cfg, bands)
	return finalPlan, fxPlan, nil
}

func supportsFunding(enumerated []string, currency string) bool {
	if len(enumerated) == 0 {
		return true
	}
	for _, c := range enumerated {
		if c == currency {
			return true
		}
	}
	return false
}
