// Package fxengine decides whether a funding-currency to base-currency
// conversion is needed to cover a USD shortfall, and sizes it (spec §4.4).
package fxengine

import (
	"math"
	"strings"
	"time"

	"github.com/arutneva1/IB-Trade/internal/bps"
	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
)

func round(value float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(value*mult) / mult
}

func noFX(cfg config.FXConfig, pair, reason string) domain.FxPlan {
	return domain.FxPlan{
		NeedFX:             false,
		Pair:               pair,
		Side:               domain.SideBuy,
		OrderType:          domain.OrderType(orDefault(cfg.OrderType, "MKT")),
		Route:              cfg.Route,
		WaitForFillSeconds: cfg.WaitForFillSeconds,
		Reason:             reason,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// PlanFXIfNeeded is the pure decision function described by spec §4.4. now
// must be tz-aware (carry a zone); holidays are America/New_York calendar
// dates in YYYY-MM-DD form. fxPrice, when non-nil, overrides any rate
// derived from fxQuote.
func PlanFXIfNeeded(
	usdNeeded float64,
	usdCash float64,
	fundingCash float64,
	fxQuote *domain.Quote,
	cfg config.FXConfig,
	fxPrice *float64,
	fundingCurrency string,
	now time.Time,
) domain.FxPlan {
	fundingCurrency = strings.ToUpper(fundingCurrency)
	pair := cfg.BaseCurrency + "." + fundingCurrency

	if cfg.PreferMarketHours {
		holidaySet := make(map[string]struct{}, len(cfg.MarketHolidays))
		for _, d := range cfg.MarketHolidays {
			holidaySet[d] = struct{}{}
		}
		if !isMarketOpen(now, holidaySet) {
			return noFX(cfg, pair, "outside market hours")
		}
	}

	shortfall := math.Max(0, usdNeeded-usdCash)
	if shortfall == 0 {
		return noFX(cfg, pair, "no USD shortfall")
	}

	if fundingCash <= 0 {
		return noFX(cfg, pair, "no "+fundingCurrency+" cash available")
	}

	buffered := shortfall * (1 + bps.FromBps(float64(cfg.FXBufferBps)))
	if buffered < cfg.MinFXOrderUSD {
		return noFX(cfg, pair, "shortfall below min FX order size")
	}

	usdNotional := buffered
	if cfg.MaxFXOrderUSD != nil {
		usdNotional = math.Min(usdNotional, *cfg.MaxFXOrderUSD)
	}

	var mid float64
	var estRate float64
	haveMid := false

	if fxPrice == nil {
		if fxQuote == nil {
			return noFX(cfg, pair, "no FX quote")
		}
		if fxQuote.IsStale(now, cfg.StaleQuoteSeconds) {
			return noFX(cfg, pair, "stale FX quote")
		}
		m, ok := fxQuote.Mid()
		if !ok {
			return noFX(cfg, pair, "incomplete FX quote")
		}
		mid, haveMid = m, true

		if cfg.UseMidForPlanning {
			estRate = mid
		} else if fxQuote.Ask != nil {
			estRate = *fxQuote.Ask
		} else {
			return noFX(cfg, pair, "incomplete FX quote")
		}
	} else {
		estRate = *fxPrice
		if fxQuote != nil {
			if m, ok := fxQuote.Mid(); ok {
				mid, haveMid = m, true
			}
		}
		if !haveMid {
			mid, haveMid = *fxPrice, true
		}
	}

	estRate = round(estRate, 4)

	maxPurchasable := fundingCash / estRate
	if maxPurchasable < cfg.MinFXOrderUSD {
		return noFX(cfg, pair, "insufficient "+fundingCurrency+" cash")
	}
	usdNotional = math.Min(usdNotional, maxPurchasable)

	qty := round(usdNotional, 2)
	usdNotional = qty

	var limitPrice *float64
	orderType := domain.OrderType(orDefault(cfg.OrderType, "MKT"))
	if orderType == domain.OrderTypeLimit {
		offset := mid * bps.FromBps(float64(cfg.LimitSlippageBps))
		price := mid + offset
		price = round(price, 4)
		limitPrice = &price
	}

	return domain.FxPlan{
		NeedFX:             true,
		Pair:               pair,
		Side:               domain.SideBuy,
		USDNotional:        usdNotional,
		EstRate:            estRate,
		Qty:                qty,
		OrderType:          orderType,
		LimitPrice:         limitPrice,
		Route:              cfg.Route,
		WaitForFillSeconds: cfg.WaitForFillSeconds,
		Reason:             "funding USD shortfall",
	}
}
