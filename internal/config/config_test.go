package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCore() Core {
	return Core{
		Models: ModelsConfig{SMURF: 0.5, BADASS: 0.3, GLTR: 0.2},
		Rebalance: RebalanceConfig{
			TriggerMode:   TriggerPerHolding,
			MinOrderUSD:   500,
			CashBufferPct: 1.0,
			MaxLeverage:   1.5,
			OrderType:     "LMT",
		},
		FX: FXConfig{
			Enabled:           true,
			BaseCurrency:      "USD",
			FundingCurrencies: []string{"CAD"},
			ConvertMode:       ConvertJustInTime,
			MinFXOrderUSD:     1000,
			OrderType:         "MKT",
		},
		Pricing: PricingConfig{PriceSource: PriceSourceLast},
		Limits: LimitsConfig{
			Style:          StyleSpreadAware,
			BuyOffsetFrac:  0.25,
			SellOffsetFrac: 0.25,
			EscalateAction: EscalateCross,
		},
		Safety: SafetyConfig{PaperOnly: true, RequireConfirm: true},
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	assert.Nil(t, validCore().Validate())
}

func TestValidate_ModelWeightsMustSumToOne(t *testing.T) {
	c := validCore()
	c.Models.GLTR = 0.3 // total 1.1

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "sum to 1")
}

func TestValidate_InvalidMaxLeverage(t *testing.T) {
	c := validCore()
	c.Rebalance.MaxLeverage = -1

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "max_leverage")
}

func TestValidate_InvalidTriggerMode(t *testing.T) {
	c := validCore()
	c.Rebalance.TriggerMode = "bad"

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "trigger_mode")
}

func TestValidate_CashBufferPctAbove100IsRejected(t *testing.T) {
	c := validCore()
	// A caller who mistakenly passes a fraction (e.g. 0.99 meant as 99%)
	// is still in-range; only an out-of-range percent is rejected.
	c.Rebalance.CashBufferPct = 150

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "cash_buffer_pct")
}

func TestValidate_FXRequiresBaseCurrencyAndFundingWhenEnabled(t *testing.T) {
	c := validCore()
	c.FX.FundingCurrencies = nil

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "funding_currencies")
}

func TestValidate_FXDisabledSkipsFXChecks(t *testing.T) {
	c := validCore()
	c.FX = FXConfig{Enabled: false}

	assert.Nil(t, c.Validate())
}

func TestValidate_FXMaxOrderBelowMinIsRejected(t *testing.T) {
	c := validCore()
	max := 100.0
	c.FX.MaxFXOrderUSD = &max // below MinFXOrderUSD of 1000

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "max_fx_order_usd")
}

func TestValidate_UnrecognizedLimitsStyleIsRejected(t *testing.T) {
	c := validCore()
	c.Limits.Style = "bogus"

	err := c.Validate()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "style")
}

func TestCashBufferFraction_ConvertsPercentToFraction(t *testing.T) {
	r := RebalanceConfig{CashBufferPct: 2.5}
	assert.InDelta(t, 0.025, r.CashBufferFraction(), 1e-9)
}

func TestValidate_ExitCodeIsConfigIO(t *testing.T) {
	c := validCore()
	c.Rebalance.MinOrderUSD = 0

	err := c.Validate()
	require.NotNil(t, err)
	assert.Equal(t, 2, err.ExitCode())
}
