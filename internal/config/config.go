// Package config is the validated, in-memory configuration surface the core
// operates on. It does not parse files or flags (callers own that); it only
// defines the shape of a valid configuration and validates one.
package config

import (
	"fmt"
	"strings"

	"github.com/arutneva1/IB-Trade/internal/errs"
)

// ModelsConfig gives the blend weight of each named model portfolio.
type ModelsConfig struct {
	SMURF  float64
	BADASS float64
	GLTR   float64
}

func (m ModelsConfig) validate() error {
	for name, w := range map[string]float64{"SMURF": m.SMURF, "BADASS": m.BADASS, "GLTR": m.GLTR} {
		if w < 0 || w > 1 {
			return fmt.Errorf("models.%s must be in [0, 1], got %v", name, w)
		}
	}
	total := m.SMURF + m.BADASS + m.GLTR
	if diff := total - 1.0; diff > 1e-3 || diff < -1e-3 {
		return fmt.Errorf("model weights must sum to 1 ± 1e-3, got %v", total)
	}
	return nil
}

// TriggerMode selects how the planner decides an actionable symbol set.
type TriggerMode string

const (
	TriggerPerHolding TriggerMode = "per_holding"
	TriggerTotalDrift TriggerMode = "total_drift"
)

// RebalanceConfig mirrors spec §6's [rebalance] group.
type RebalanceConfig struct {
	TriggerMode             TriggerMode
	PerHoldingBandBps       int
	PortfolioTotalBandBps   int
	MinOrderUSD             float64
	CashBufferPct           float64 // percent, e.g. 1.0 means 1%, not 0.01
	MaintenanceBufferPct    float64 // percent
	AllowFractional         bool
	AllowMargin             bool
	MaxLeverage             float64
	PreferRTH               bool
	OrderType               string // "LMT" or "MKT"
}

func (r RebalanceConfig) validate() error {
	switch r.TriggerMode {
	case TriggerPerHolding, TriggerTotalDrift, "":
	default:
		return fmt.Errorf("rebalance.trigger_mode %q is not recognized", r.TriggerMode)
	}
	if r.PerHoldingBandBps < 0 {
		return fmt.Errorf("rebalance.per_holding_band_bps must be >= 0")
	}
	if r.PortfolioTotalBandBps < 0 {
		return fmt.Errorf("rebalance.portfolio_total_band_bps must be >= 0")
	}
	if r.MinOrderUSD <= 0 {
		return fmt.Errorf("rebalance.min_order_usd must be > 0")
	}
	// cash_buffer_pct is a percent (1.0 == 1%), not a fraction: reject values
	// outside [0, 100]. A fraction passed by mistake (e.g. 0.5) is in range
	// and is not detected here.
	if r.CashBufferPct < 0 || r.CashBufferPct > 100 {
		return fmt.Errorf("rebalance.cash_buffer_pct must be a percent in [0, 100], got %v", r.CashBufferPct)
	}
	if r.MaintenanceBufferPct < 0 || r.MaintenanceBufferPct > 100 {
		return fmt.Errorf("rebalance.maintenance_buffer_pct must be a percent in [0, 100], got %v", r.MaintenanceBufferPct)
	}
	if r.MaxLeverage <= 0 {
		return fmt.Errorf("rebalance.max_leverage must be > 0")
	}
	switch r.OrderType {
	case "LMT", "MKT", "":
	default:
		return fmt.Errorf("rebalance.order_type %q is not recognized", r.OrderType)
	}
	return nil
}

// ConvertMode controls when the FX engine is consulted during planning.
type ConvertMode string

const (
	ConvertJustInTime  ConvertMode = "just_in_time"
	ConvertAlwaysTopUp ConvertMode = "always_top_up"
)

// FXConfig mirrors spec §6's [fx] group.
type FXConfig struct {
	Enabled            bool
	BaseCurrency       string
	FundingCurrencies  []string
	ConvertMode        ConvertMode
	UseMidForPlanning  bool
	MinFXOrderUSD      float64
	MaxFXOrderUSD      *float64 // nil means uncapped
	FXBufferBps        int
	OrderType          string // "MKT" or "LMT"
	LimitSlippageBps   int
	Route              string
	WaitForFillSeconds int
	PreferMarketHours  bool
	StaleQuoteSeconds  int
	MarketHolidays     []string // YYYY-MM-DD, America/New_York calendar dates
}

func (f FXConfig) validate() error {
	if !f.Enabled {
		return nil
	}
	if strings.TrimSpace(f.BaseCurrency) == "" {
		return fmt.Errorf("fx.base_currency is required when fx.enabled")
	}
	if len(f.FundingCurrencies) == 0 {
		return fmt.Errorf("fx.funding_currencies must be non-empty when fx.enabled")
	}
	switch f.ConvertMode {
	case ConvertJustInTime, ConvertAlwaysTopUp, "":
	default:
		return fmt.Errorf("fx.convert_mode %q is not recognized", f.ConvertMode)
	}
	if f.MinFXOrderUSD <= 0 {
		return fmt.Errorf("fx.min_fx_order_usd must be > 0")
	}
	if f.MaxFXOrderUSD != nil && *f.MaxFXOrderUSD < f.MinFXOrderUSD {
		return fmt.Errorf("fx.max_fx_order_usd must be >= fx.min_fx_order_usd")
	}
	if f.FXBufferBps < 0 {
		return fmt.Errorf("fx.fx_buffer_bps must be >= 0")
	}
	switch f.OrderType {
	case "MKT", "LMT", "":
	default:
		return fmt.Errorf("fx.order_type %q is not recognized", f.OrderType)
	}
	if f.WaitForFillSeconds < 0 {
		return fmt.Errorf("fx.wait_for_fill_seconds must be >= 0")
	}
	if f.StaleQuoteSeconds < 0 {
		return fmt.Errorf("fx.stale_quote_seconds must be >= 0")
	}
	return nil
}

// PriceSource selects which quote field the pricer and planner prefer.
type PriceSource string

const (
	PriceSourceLast     PriceSource = "last"
	PriceSourceMidpoint PriceSource = "midpoint"
	PriceSourceBidAsk   PriceSource = "bidask"
)

// PricingConfig mirrors spec §6's [pricing] group.
type PricingConfig struct {
	PriceSource         PriceSource
	FallbackToSnapshot  bool
}

func (p PricingConfig) validate() error {
	switch p.PriceSource {
	case PriceSourceLast, PriceSourceMidpoint, PriceSourceBidAsk, "":
	default:
		return fmt.Errorf("pricing.price_source %q is not recognized", p.PriceSource)
	}
	return nil
}

// EscalateAction selects what the limit pricer does on a wide or stale quote.
type EscalateAction string

const (
	EscalateCross  EscalateAction = "cross"
	EscalateMarket EscalateAction = "market"
	EscalateKeep   EscalateAction = "keep"
)

// PricingStyle selects the limit pricer's algorithm.
type PricingStyle string

const (
	StyleSpreadAware PricingStyle = "spread_aware"
	StyleStaticBps   PricingStyle = "static_bps"
	StyleOff         PricingStyle = "off"
)

// LimitsConfig mirrors spec §6's [limits] group.
type LimitsConfig struct {
	SmartLimit        bool
	Style             PricingStyle
	BuyOffsetFrac     float64
	SellOffsetFrac    float64
	MaxOffsetBps      int
	WideSpreadBps     int
	EscalateAction    EscalateAction
	StaleQuoteSeconds int
	UseAskBidCap      bool
}

func (l LimitsConfig) validate() error {
	switch l.Style {
	case StyleSpreadAware, StyleStaticBps, StyleOff, "":
	default:
		return fmt.Errorf("limits.style %q is not recognized", l.Style)
	}
	if l.BuyOffsetFrac < 0 || l.BuyOffsetFrac > 1 {
		return fmt.Errorf("limits.buy_offset_frac must be in [0, 1]")
	}
	if l.SellOffsetFrac < 0 || l.SellOffsetFrac > 1 {
		return fmt.Errorf("limits.sell_offset_frac must be in [0, 1]")
	}
	if l.MaxOffsetBps < 0 {
		return fmt.Errorf("limits.max_offset_bps must be >= 0")
	}
	if l.WideSpreadBps < 0 {
		return fmt.Errorf("limits.wide_spread_bps must be >= 0")
	}
	switch l.EscalateAction {
	case EscalateCross, EscalateMarket, EscalateKeep, "":
	default:
		return fmt.Errorf("limits.escalate_action %q is not recognized", l.EscalateAction)
	}
	if l.StaleQuoteSeconds < 0 {
		return fmt.Errorf("limits.stale_quote_seconds must be >= 0")
	}
	return nil
}

// SafetyConfig mirrors spec §6's [safety] group.
type SafetyConfig struct {
	PaperOnly       bool
	RequireConfirm  bool
	KillSwitchFile  string
}

// Core is the fully validated configuration surface the rest of the core
// consumes. Construction of a Core from a file or CLI flags is a caller
// concern; this package only defines the shape and the invariants.
type Core struct {
	Models    ModelsConfig
	Rebalance RebalanceConfig
	FX        FXConfig
	Pricing   PricingConfig
	Limits    LimitsConfig
	Safety    SafetyConfig
}

// Validate checks every group's invariants and returns the first violation
// found, wrapped as a ConfigError. Groups are checked in the order they
// appear in spec §6's table so a user sees the same failure every run.
func (c Core) Validate() *errs.ConfigError {
	checks := []struct {
		group string
		err   error
	}{
		{"models", c.Models.validate()},
		{"rebalance", c.Rebalance.validate()},
		{"fx", c.FX.validate()},
		{"pricing", c.Pricing.validate()},
		{"limits", c.Limits.validate()},
	}
	for _, c := range checks {
		if c.err != nil {
			return errs.NewConfigError("%s", c.err.Error())
		}
	}
	return nil
}

// CashBufferFraction converts the percent-valued CashBufferPct into the
// fraction the account reducer and planner operate on.
func (r RebalanceConfig) CashBufferFraction() float64 {
	return r.CashBufferPct / 100
}

// MaintenanceBufferFraction converts MaintenanceBufferPct to a fraction.
func (r RebalanceConfig) MaintenanceBufferFraction() float64 {
	return r.MaintenanceBufferPct / 100
}
