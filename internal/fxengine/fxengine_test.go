package fxengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
)

func baseCfg() config.FXConfig {
	return config.FXConfig{
		BaseCurrency:       "USD",
		MinFXOrderUSD:      1000,
		FXBufferBps:        20,
		OrderType:          "MKT",
		Route:              "IDEALPRO",
		WaitForFillSeconds: 5,
		StaleQuoteSeconds:  10,
		UseMidForPlanning:  true,
	}
}

func quote(bid, ask float64, ts time.Time) *domain.Quote {
	return &domain.Quote{Bid: &bid, Ask: &ask, Timestamp: ts}
}

func TestPlanFXIfNeeded_NoShortfallSkipsFX(t *testing.T) {
	now := time.Now()
	plan := PlanFXIfNeeded(1000, 1000, 5000, quote(1.3, 1.31, now), baseCfg(), nil, "CAD", now)

	assert.False(t, plan.NeedFX)
	assert.Equal(t, "no USD shortfall", plan.Reason)
}

func TestPlanFXIfNeeded_NoFundingCashSkipsFX(t *testing.T) {
	now := time.Now()
	plan := PlanFXIfNeeded(5000, 0, 0, quote(1.3, 1.31, now), baseCfg(), nil, "CAD", now)

	assert.False(t, plan.NeedFX)
}

func TestPlanFXIfNeeded_BelowMinOrderSkipsFX(t *testing.T) {
	now := time.Now()
	plan := PlanFXIfNeeded(500, 0, 5000, quote(1.3, 1.31, now), baseCfg(), nil, "CAD", now)

	assert.False(t, plan.NeedFX)
}

func TestPlanFXIfNeeded_StaleQuoteSkipsFX(t *testing.T) {
	now := time.Now()
	stale := now.Add(-1 * time.Hour)
	plan := PlanFXIfNeeded(5000, 0, 10000, quote(1.3, 1.31, stale), baseCfg(), nil, "CAD", now)

	assert.False(t, plan.NeedFX)
	assert.Equal(t, "stale FX quote", plan.Reason)
}

func TestPlanFXIfNeeded_NoQuoteSkipsFX(t *testing.T) {
	now := time.Now()
	plan := PlanFXIfNeeded(5000, 0, 10000, nil, baseCfg(), nil, "CAD", now)

	assert.False(t, plan.NeedFX)
	assert.Equal(t, "no FX quote", plan.Reason)
}

func TestPlanFXIfNeeded_SizesFromMidWithBuffer(t *testing.T) {
	now := time.Now()
	cfg := baseCfg()
	plan := PlanFXIfNeeded(5000, 0, 100000, quote(1.30, 1.32, now), cfg, nil, "CAD", now)

	require.True(t, plan.NeedFX)
	// shortfall=5000, buffered = 5000*1.002 = 5010
	assert.InDelta(t, 5010, plan.USDNotional, 0.01)
	assert.InDelta(t, 1.31, plan.EstRate, 1e-9)
	assert.Equal(t, "USD.CAD", plan.Pair)
	assert.Equal(t, domain.SideBuy, plan.Side)
}

func TestPlanFXIfNeeded_CapsByMaxFXOrderUSD(t *testing.T) {
	now := time.Now()
	cfg := baseCfg()
	maxOrder := 2000.0
	cfg.MaxFXOrderUSD = &maxOrder
	plan := PlanFXIfNeeded(5000, 0, 100000, quote(1.30, 1.32, now), cfg, nil, "CAD", now)

	require.True(t, plan.NeedFX)
	assert.LessOrEqual(t, plan.USDNotional, 2000.0)
}

func TestPlanFXIfNeeded_InsufficientFundingCashSkipsFX(t *testing.T) {
	now := time.Now()
	cfg := baseCfg()
	plan := PlanFXIfNeeded(5000, 0, 100, quote(1.30, 1.32, now), cfg, nil, "CAD", now)

	assert.False(t, plan.NeedFX)
	assert.Equal(t, "insufficient CAD cash", plan.Reason)
}

func TestPlanFXIfNeeded_CapsByAvailableFundingCash(t *testing.T) {
	now := time.Now()
	cfg := baseCfg()
	// funding_cash/est_rate(~1.31) must be >= min_fx_order_usd(1000) but < buffered(5010)
	plan := PlanFXIfNeeded(5000, 0, 1400, quote(1.30, 1.32, now), cfg, nil, "CAD", now)

	require.True(t, plan.NeedFX)
	assert.LessOrEqual(t, plan.USDNotional, 1400/1.31+0.01)
}

func TestPlanFXIfNeeded_LimitOrderSetsSlippagePrice(t *testing.T) {
	now := time.Now()
	cfg := baseCfg()
	cfg.OrderType = "LMT"
	cfg.LimitSlippageBps = 10
	plan := PlanFXIfNeeded(5000, 0, 100000, quote(1.30, 1.32, now), cfg, nil, "CAD", now)

	require.True(t, plan.NeedFX)
	require.NotNil(t, plan.LimitPrice)
	assert.Greater(t, *plan.LimitPrice, plan.EstRate)
}

func TestPlanFXIfNeeded_ExplicitFxPriceOverridesQuote(t *testing.T) {
	now := time.Now()
	cfg := baseCfg()
	explicit := 1.5
	plan := PlanFXIfNeeded(5000, 0, 100000, nil, cfg, &explicit, "CAD", now)

	require.True(t, plan.NeedFX)
	assert.InDelta(t, 1.5, plan.EstRate, 1e-9)
}

func TestPlanFXIfNeeded_OutsideMarketHoursSkipsFX(t *testing.T) {
	cfg := baseCfg()
	cfg.PreferMarketHours = true
	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, newYork)

	plan := PlanFXIfNeeded(5000, 0, 100000, quote(1.30, 1.32, saturday), cfg, nil, "CAD", saturday)

	assert.False(t, plan.NeedFX)
	assert.Equal(t, "outside market hours", plan.Reason)
}
