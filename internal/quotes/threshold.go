package quotes

import (
	"os"

	"github.com/shopspring/decimal"
)

// ThresholdConfig holds the profitability floors. All three are tuning
// parameters, read from the environment with conservative defaults; the
// invariant is only that execution never happens below any individual floor.
type ThresholdConfig struct {
	BaseFloorPct         decimal.Decimal
	SlippageBufferPct    decimal.Decimal
	SafetyMarginPct      decimal.Decimal
	MinAbsoluteProfitUSD decimal.Decimal
}

func envDecimal(name string, fallback string) decimal.Decimal {
	if raw := os.Getenv(name); raw != "" {
		if value, err := decimal.NewFromString(raw); err == nil {
			return value
		}
	}
	return decimal.RequireFromString(fallback)
}

// ThresholdFromEnv reads the floors from the environment.
func ThresholdFromEnv() ThresholdConfig {
	return ThresholdConfig{
		BaseFloorPct:         envDecimal("MIN_SPREAD_PCT", "0.3"),
		SlippageBufferPct:    envDecimal("SLIPPAGE_BUFFER_PCT", "0.1"),
		SafetyMarginPct:      envDecimal("SAFETY_MARGIN_PCT", "0.05"),
		MinAbsoluteProfitUSD: envDecimal("MIN_ABSOLUTE_PROFIT_USD", "1"),
	}
}

// MinSpreadPct computes the dynamic gate:
//
//	max(baseFloorPct,
//	    gasCostPct + slippageBufferPct + safetyMarginPct,
//	    minAbsoluteProfitUsd / notional * 100)
func (c ThresholdConfig) MinSpreadPct(gasCostUSD, notionalUSD decimal.Decimal) decimal.Decimal {
	threshold := c.BaseFloorPct

	if notionalUSD.IsPositive() {
		gasPct := gasCostUSD.Div(notionalUSD).Mul(hundred)
		costBased := gasPct.Add(c.SlippageBufferPct).Add(c.SafetyMarginPct)
		if costBased.GreaterThan(threshold) {
			threshold = costBased
		}

		absoluteFloor := c.MinAbsoluteProfitUSD.Div(notionalUSD).Mul(hundred)
		if absoluteFloor.GreaterThan(threshold) {
			threshold = absoluteFloor
		}
	}

	return threshold
}
