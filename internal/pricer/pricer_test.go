package pricer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
)

func tightQuote(bid, ask float64) domain.Quote {
	return domain.Quote{Bid: &bid, Ask: &ask, Timestamp: time.Now()}
}

func spreadAwareCfg() config.LimitsConfig {
	return config.LimitsConfig{
		SmartLimit:        true,
		Style:             config.StyleSpreadAware,
		BuyOffsetFrac:     0.25,
		SellOffsetFrac:    0.25,
		MaxOffsetBps:      100,
		WideSpreadBps:     50,
		EscalateAction:    config.EscalateCross,
		StaleQuoteSeconds: 10,
		UseAskBidCap:      true,
	}
}

func TestPriceLimit_S5_WideSpreadEscalatesToCross(t *testing.T) {
	cfg := spreadAwareCfg()
	q := tightQuote(99, 101) // spread = 2/100 = 200bps > wide_spread_bps(50)

	buyPrice, buyType, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.OrderTypeLimit, buyType)
	require.NotNil(t, buyPrice)
	assert.InDelta(t, 101.00, *buyPrice, 1e-9)

	sellPrice, sellType, err := PriceLimit(domain.SideSell, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.OrderTypeLimit, sellType)
	require.NotNil(t, sellPrice)
	assert.InDelta(t, 99.00, *sellPrice, 1e-9)
}

func TestPriceLimit_NarrowSpreadUsesOffsetFromMid(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.WideSpreadBps = 1000 // never wide for this quote
	q := tightQuote(99.90, 100.10)

	price, orderType, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderTypeLimit, orderType)
	// mid=100, spread=0.20, candidate = 100 + 0.25*0.20 = 100.05
	assert.InDelta(t, 100.05, *price, 1e-9)
}

func TestPriceLimit_MaxOffsetBpsCapsCandidate(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.WideSpreadBps = 1000
	cfg.MaxOffsetBps = 1 // 1bp cap, far tighter than the offset would reach
	q := tightQuote(99.90, 100.10)

	price, _, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	// cap = 100 * 1.0001 = 100.01
	assert.LessOrEqual(t, *price, 100.02)
}

func TestPriceLimit_EscalateMarketReturnsNilPrice(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.EscalateAction = config.EscalateMarket
	q := tightQuote(99, 101)

	price, orderType, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	assert.Nil(t, price)
	assert.Equal(t, domain.OrderTypeMarket, orderType)
}

func TestPriceLimit_StaleQuoteEscalates(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.WideSpreadBps = 1000
	stale := time.Now().Add(-1 * time.Hour)
	q := domain.Quote{Bid: f(99.90), Ask: f(100.10), Timestamp: stale}

	price, orderType, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.OrderTypeLimit, orderType)
	assert.InDelta(t, 100.10, *price, 1e-9) // cross: round up ask to tick
}

func TestPriceLimit_TickDefaultsWhenNonPositive(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.WideSpreadBps = 1000
	q := tightQuote(99.90, 100.10)

	price, _, err := PriceLimit(domain.SideBuy, q, 0, cfg, time.Now())
	require.NoError(t, err)
	// with default 0.01 tick, result should align to cents
	rounded := float64(int(*price*100+0.5)) / 100
	assert.InDelta(t, rounded, *price, 1e-9)
}

func TestPriceLimit_SmartLimitOffReturnsNaivePrice(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.SmartLimit = false
	q := tightQuote(99, 101)

	buyPrice, orderType, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderTypeLimit, orderType)
	assert.InDelta(t, 101, *buyPrice, 1e-9)

	sellPrice, _, err := PriceLimit(domain.SideSell, q, 0.01, cfg, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 99, *sellPrice, 1e-9)
}

func TestPriceLimit_UnsupportedStyleIsError(t *testing.T) {
	cfg := spreadAwareCfg()
	cfg.Style = "static_bps"
	q := tightQuote(99, 101)

	_, _, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.Error(t, err)
}

func TestPriceLimit_InvertedQuoteIsError(t *testing.T) {
	cfg := spreadAwareCfg()
	q := tightQuote(101, 99)

	_, _, err := PriceLimit(domain.SideBuy, q, 0.01, cfg, time.Now())
	require.Error(t, err)
}

func f(v float64) *float64 { return &v }
