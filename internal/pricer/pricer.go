// Package pricer converts an intent to trade into a concrete limit price (or
// a market escalation), constrained by the NBBO, tick grid, spread width,
// and quote staleness (spec §4.5).
package pricer

import (
	"math"
	"time"

	"github.com/arutneva1/IB-Trade/internal/bps"
	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

func normalizeTick(tick float64) float64 {
	if tick <= 0 || math.IsNaN(tick) || math.IsInf(tick, 0) {
		return 0.01
	}
	return tick
}

func roundToTick(price, tick float64) float64 {
	tick = normalizeTick(tick)
	return math.Floor(price/tick+0.5) * tick
}

func roundDownToTick(price, tick float64) float64 {
	tick = normalizeTick(tick)
	return math.Floor(price/tick) * tick
}

func roundUpToTick(price, tick float64) float64 {
	tick = normalizeTick(tick)
	return math.Ceil(price/tick) * tick
}

func clampUpper(value, upper float64) float64 {
	if value > upper {
		return upper
	}
	return value
}

func clampLower(value, lower float64) float64 {
	if value < lower {
		return lower
	}
	return value
}

// PriceLimit implements spec §4.5's price_limit contract for a single side.
// When cfg disables smart pricing or selects "off", it returns the naive
// ask (BUY) or bid (SELL) as an LMT price. With smart pricing on, any style
// other than spread_aware/off/"" returns a RuntimeError. Requires both bid
// and ask; the spread_aware path also requires ask > bid.
func PriceLimit(side domain.Side, quote domain.Quote, tick float64, cfg config.LimitsConfig, now time.Time) (*float64, domain.OrderType, error) {
	if !cfg.SmartLimit || cfg.Style != config.StyleSpreadAware {
		if !cfg.SmartLimit || cfg.Style == config.StyleOff || cfg.Style == "" {
			if quote.Bid == nil || quote.Ask == nil {
				return nil, "", errs.NewRuntimeError("quote missing bid/ask")
			}
			var naive float64
			if side == domain.SideBuy {
				naive = *quote.Ask
			} else {
				naive = *quote.Bid
			}
			return &naive, domain.OrderTypeLimit, nil
		}
		return nil, "", errs.NewRuntimeError("unsupported limit pricing style: %s", cfg.Style)
	}

	if side == domain.SideBuy {
		return priceBuy(quote, tick, cfg, now)
	}
	return priceSell(quote, tick, cfg, now)
}

func priceBuy(quote domain.Quote, tick float64, cfg config.LimitsConfig, now time.Time) (*float64, domain.OrderType, error) {
	if quote.Bid == nil || quote.Ask == nil {
		return nil, "", errs.NewRuntimeError("quote missing bid/ask")
	}
	bid, ask := *quote.Bid, *quote.Ask
	spread := ask - bid
	if spread <= 0 {
		return nil, "", errs.NewRuntimeError("quote ask must be greater than bid")
	}

	mid := (bid + ask) / 2
	spreadBps := bps.ToBps(spread / mid)

	price := mid + cfg.BuyOffsetFrac*spread
	cap := mid * (1 + bps.FromBps(float64(cfg.MaxOffsetBps)))
	price = clampUpper(price, cap)
	if cfg.UseAskBidCap {
		price = clampUpper(price, ask)
	}
	price = roundToTick(price, tick)
	if cfg.UseAskBidCap && price > ask {
		price = roundDownToTick(ask, tick)
	}

	if isWideOrStale(spreadBps, quote, now, cfg) {
		switch cfg.EscalateAction {
		case config.EscalateCross:
			price = roundUpToTick(ask, tick)
			if cfg.UseAskBidCap {
				price = clampUpper(price, roundDownToTick(ask, tick))
			}
			return &price, domain.OrderTypeLimit, nil
		case config.EscalateMarket:
			return nil, domain.OrderTypeMarket, nil
		}
		// EscalateKeep: retain the capped price computed above.
	}

	return &price, domain.OrderTypeLimit, nil
}

func priceSell(quote domain.Quote, tick float64, cfg config.LimitsConfig, now time.Time) (*float64, domain.OrderType, error) {
	if quote.Bid == nil || quote.Ask == nil {
		return nil, "", errs.NewRuntimeError("quote missing bid/ask")
	}
	bid, ask := *quote.Bid, *quote.Ask
	spread := ask - bid
	if spread <= 0 {
		return nil, "", errs.NewRuntimeError("quote ask must be greater than bid")
	}

	mid := (bid + ask) / 2
	spreadBps := bps.ToBps(spread / mid)

	price := mid - cfg.SellOffsetFrac*spread
	cap := mid * (1 - bps.FromBps(float64(cfg.MaxOffsetBps)))
	price = clampLower(price, cap)
	if cfg.UseAskBidCap {
		price = clampLower(price, bid)
	}
	price = roundToTick(price, tick)
	if cfg.UseAskBidCap && price < bid {
		price = roundUpToTick(bid, tick)
	}

	if isWideOrStale(spreadBps, quote, now, cfg) {
		switch cfg.EscalateAction {
		case config.EscalateCross:
			price = roundDownToTick(bid, tick)
			if cfg.UseAskBidCap {
				price = clampLower(price, roundUpToTick(bid, tick))
			}
			return &price, domain.OrderTypeLimit, nil
		case config.EscalateMarket:
			return nil, domain.OrderTypeMarket, nil
		}
	}

	return &price, domain.OrderTypeLimit, nil
}

func isWideOrStale(spreadBps float64, quote domain.Quote, now time.Time, cfg config.LimitsConfig) bool {
	return spreadBps > float64(cfg.WideSpreadBps) || quote.IsStale(now, cfg.StaleQuoteSeconds)
}
