// Package regime implements the market-regime classifier (C2): a
// pure decision table mapping the latest indicator snapshot plus
// current drawdown into a qualitative RegimeKind, recomputed fresh
// every cycle with no hysteresis beyond the two ATR-percentile bands.
package regime

import (
	"math"

	"gridbot/internal/indicator"
	"gridbot/internal/types"
)

const (
	defaultActivationPercentile   = 0.65
	defaultDeactivationPercentile = 0.35
	defaultTrendSeparationPct     = 0.5
)

// Config carries the classifier's tunable thresholds. Zero-valued
// fields fall back to the documented defaults.
type Config struct {
	ActivationPercentile   float64
	DeactivationPercentile float64
	TrendSeparationPercent float64
	EmergencyDrawdownPct   float64
}

func (c Config) withDefaults() Config {
	if c.ActivationPercentile == 0 {
		c.ActivationPercentile = defaultActivationPercentile
	}
	if c.DeactivationPercentile == 0 {
		c.DeactivationPercentile = defaultDeactivationPercentile
	}
	if c.TrendSeparationPercent == 0 {
		c.TrendSeparationPercent = defaultTrendSeparationPct
	}
	return c
}

// Classifier is stateless: every call is a pure function of its
// inputs, so it holds nothing but its own configuration.
type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.withDefaults()}
}

// Classify maps an indicator snapshot and the current drawdown
// percentage (from C8) to a regime. currentDrawdownPct is expressed as
// a positive percentage (e.g. 6.0 for a 6% drawdown).
func (c *Classifier) Classify(snap indicator.Snapshot, currentDrawdownPct float64) types.RegimeKind {
	if c.cfg.EmergencyDrawdownPct > 0 && currentDrawdownPct > c.cfg.EmergencyDrawdownPct {
		return types.RegimeEmergency
	}
	if snap.ATRPercentile >= c.cfg.ActivationPercentile {
		return types.RegimeHighVolatility
	}
	if snap.ATRPercentile <= c.cfg.DeactivationPercentile {
		return types.RegimeLowVolatility
	}
	if dir, trending := c.trendDirection(snap); trending {
		return dir
	}
	return types.RegimeRanging
}

// trendDirection reports a sign-consistent trend when EMA(12) and
// EMA(26) separate by more than the configured percentage of price.
func (c *Classifier) trendDirection(snap indicator.Snapshot) (types.RegimeKind, bool) {
	if snap.Price == 0 {
		return types.RegimeRanging, false
	}
	separationPct := math.Abs(snap.EMAFast-snap.EMASlow) / snap.Price * 100
	if separationPct <= c.cfg.TrendSeparationPercent {
		return types.RegimeRanging, false
	}
	if snap.EMAFast > snap.EMASlow {
		return types.RegimeTrendingUp, true
	}
	return types.RegimeTrendingDown, true
}
