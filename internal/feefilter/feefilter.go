// Package feefilter implements the pre-trade profitability gate (C4):
// given a trade intent's prices, size, and the current volatility
// regime, it estimates the round-trip cost (taker + maker fee,
// two-sided slippage, and an optional market-impact term) and rejects
// any trade whose expected gross profit doesn't clear
// min_profit_multiplier times that cost. Grounded on the Rust
// reference's FeeFilter, generalized from its fixed base-fee model to
// the spec's richer taker/maker/slippage/impact cost breakdown.
package feefilter

import (
	"math"

	"gridbot/internal/types"
)

// Config carries every tunable named in the configuration surface.
type Config struct {
	Enabled                bool
	MakerFeePercent        float64
	TakerFeePercent        float64
	SlippagePercent        float64
	MinProfitMultiplier    float64
	VolatilityScalingFactor float64
	EnableMarketImpact     bool
	EnableRegimeAdjustment bool
	GracePeriodTrades      int
}

// Filter holds configuration plus the running trade count used to
// detect whether the grace period has elapsed.
type Filter struct {
	cfg        Config
	tradeCount int
}

func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Decision is the filter's verdict on one candidate trade.
type Decision struct {
	Accept     bool
	GrossProfit float64
	Costs       float64
	Threshold   float64
	Reason      string
}

// RecordTrade advances the grace-period counter. Call once per
// executed trade, independent of Evaluate outcomes.
func (f *Filter) RecordTrade() {
	f.tradeCount++
}

// Evaluate computes expected net profitability for a candidate trade
// and returns whether C10 should proceed. size is expressed in output
// units of the trade (whatever unit currentPrice/targetPrice share).
func (f *Filter) Evaluate(currentPrice, targetPrice, size float64, regime types.RegimeKind) Decision {
	gross := math.Abs(targetPrice-currentPrice) * size

	if !f.cfg.Enabled {
		return Decision{Accept: true, GrossProfit: gross, Reason: "filter disabled"}
	}
	if f.cfg.GracePeriodTrades > 0 && f.tradeCount < f.cfg.GracePeriodTrades {
		return Decision{Accept: true, GrossProfit: gross, Reason: "within grace period"}
	}

	costs := f.costs(size)
	threshold := f.cfg.MinProfitMultiplier * costs
	if f.cfg.EnableRegimeAdjustment {
		threshold = f.adjustThreshold(threshold, regime)
	}

	if gross >= threshold {
		return Decision{Accept: true, GrossProfit: gross, Costs: costs, Threshold: threshold, Reason: "profit clears threshold"}
	}
	return Decision{Accept: false, GrossProfit: gross, Costs: costs, Threshold: threshold, Reason: "profit below required threshold"}
}

// costs sums taker fee, maker fee, two-sided slippage, and an optional
// market-impact term that grows with trade size.
func (f *Filter) costs(size float64) float64 {
	total := f.cfg.TakerFeePercent + f.cfg.MakerFeePercent + 2*f.cfg.SlippagePercent
	if f.cfg.EnableMarketImpact {
		total += f.marketImpact(size)
	}
	return total
}

// marketImpact models impact as growing with the square root of size,
// scaled by the configured factor, so doubling size doesn't double
// the penalty.
func (f *Filter) marketImpact(size float64) float64 {
	if size <= 0 {
		return 0
	}
	return f.cfg.VolatilityScalingFactor * math.Sqrt(size) / 100.0
}

// adjustThreshold raises the bar in LowVolatility (fewer, more certain
// trades) and lowers it in HighVolatility (grid churns faster, smaller
// edges are acceptable since spacing has already widened).
func (f *Filter) adjustThreshold(threshold float64, regime types.RegimeKind) float64 {
	switch regime {
	case types.RegimeLowVolatility:
		return threshold * 1.25
	case types.RegimeHighVolatility:
		return threshold * 0.85
	default:
		return threshold
	}
}
