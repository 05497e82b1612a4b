// Package consensus implements the strategy consensus engine (C6):
// three sub-strategies (Grid, RSI, Momentum) each emit a per-cycle
// signal, and an aggregation step resolves them into a single
// ConsensusDecision. The default aggregation is weighted voting with
// EMA-smoothed weights, per the specification; WeightedAverage/
// Single/MajorityVote remain available as a supplemental mode knob,
// grounded on the Rust reference's ConsensusEngine.
package consensus

import (
	"math"

	"gridbot/internal/indicator"
	"gridbot/internal/types"
)

const defaultMinConfidence = 0.65

// Mode selects how contributing signals are resolved into a decision.
type Mode int

const (
	ModeWeightedVoting Mode = iota // spec default: sum(weight*confidence) per direction
	ModeSingle
	ModeWeightedAverage
	ModeMajorityVote
)

// WeightConfig carries one sub-strategy's current weight and its
// minimum-confidence floor for contributing to a vote.
type WeightConfig struct {
	Weight        float64
	MinConfidence float64
}

// Config carries the tunables governing aggregation and weight
// adaptation.
type Config struct {
	Mode              Mode
	Weights           map[types.SignalSource]WeightConfig
	UpdateFrequency   int
	Alpha             float64
	WeightSmoothing   float64
	MinMarginFraction float64
}

func (c Config) weightFor(source types.SignalSource) WeightConfig {
	if w, ok := c.Weights[source]; ok {
		return w
	}
	return WeightConfig{Weight: 1.0, MinConfidence: defaultMinConfidence}
}

// Engine holds the current per-strategy weights (mutated only by
// UpdateWeights) plus the cycle counter that paces weight updates.
type Engine struct {
	cfg   Config
	cycle int
}

func New(cfg Config) *Engine {
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.6
	}
	if cfg.WeightSmoothing == 0 {
		cfg.WeightSmoothing = 0.3
	}
	if cfg.MinMarginFraction == 0 {
		cfg.MinMarginFraction = 0.15
	}
	if cfg.Weights == nil {
		cfg.Weights = map[types.SignalSource]WeightConfig{}
	}
	return &Engine{cfg: cfg}
}

// GridSignal evaluates the grid sub-strategy: a Buy/Sell vote fires
// when price has crossed a planned level from the appropriate side,
// with confidence 1.0 at the crossing, decaying linearly with
// distance from that level's price.
func GridSignal(price float64, crossedLevel *types.GridLevel, crossingDistancePct float64) types.StrategySignal {
	if crossedLevel == nil {
		return types.StrategySignal{Source: types.SourceGrid, Direction: types.DirectionHold}
	}
	confidence := 1.0 - math.Min(crossingDistancePct, 1.0)
	direction := types.DirectionBuy
	if crossedLevel.Side == types.SideSell {
		direction = types.DirectionSell
	}
	return types.StrategySignal{
		Source:     types.SourceGrid,
		Direction:  direction,
		Confidence: math.Max(confidence, 0),
		Level:      crossedLevel,
	}
}

// RSISignal evaluates the RSI sub-strategy: oversold below 30 votes
// Buy, overbought above 70 votes Sell, each scaled by distance past
// the threshold. When requireTrendConfirmation is set, a Buy vote is
// suppressed below the 200-EMA and a Sell vote above it.
func RSISignal(snap indicator.Snapshot, requireTrendConfirmation bool) types.StrategySignal {
	switch {
	case snap.RSI < 30:
		if requireTrendConfirmation && snap.Price < snap.EMATrend {
			return types.StrategySignal{Source: types.SourceRSI, Direction: types.DirectionHold}
		}
		return types.StrategySignal{Source: types.SourceRSI, Direction: types.DirectionBuy, Confidence: (30 - snap.RSI) / 30}
	case snap.RSI > 70:
		if requireTrendConfirmation && snap.Price > snap.EMATrend {
			return types.StrategySignal{Source: types.SourceRSI, Direction: types.DirectionHold}
		}
		return types.StrategySignal{Source: types.SourceRSI, Direction: types.DirectionSell, Confidence: (snap.RSI - 70) / 30}
	default:
		return types.StrategySignal{Source: types.SourceRSI, Direction: types.DirectionHold}
	}
}

// MomentumSignal evaluates the momentum sub-strategy from the MACD
// histogram's sign and magnitude, normalized against the reference
// price so confidence stays roughly scale-invariant across pairs.
func MomentumSignal(snap indicator.Snapshot) types.StrategySignal {
	if snap.Price == 0 {
		return types.StrategySignal{Source: types.SourceMomentum, Direction: types.DirectionHold}
	}
	magnitude := math.Abs(snap.MACDHistogram) / snap.Price * 100
	confidence := math.Min(magnitude/0.5, 1.0) // 0.5% of price saturates confidence
	if snap.MACDHistogram > 0 {
		return types.StrategySignal{Source: types.SourceMomentum, Direction: types.DirectionBuy, Confidence: confidence}
	}
	if snap.MACDHistogram < 0 {
		return types.StrategySignal{Source: types.SourceMomentum, Direction: types.DirectionSell, Confidence: confidence}
	}
	return types.StrategySignal{Source: types.SourceMomentum, Direction: types.DirectionHold}
}

// Resolve aggregates sub-strategy signals into one decision per the
// engine's configured mode.
func (e *Engine) Resolve(signals []types.StrategySignal) types.ConsensusDecision {
	switch e.cfg.Mode {
	case ModeSingle:
		return e.single(signals)
	case ModeWeightedAverage:
		return e.weightedAverage(signals)
	case ModeMajorityVote:
		return e.majorityVote(signals)
	default:
		return e.weightedVoting(signals)
	}
}

// weightedVoting is the specification's default: sum weight*confidence
// per direction over signals whose confidence clears their
// sub-strategy's floor, then emit the stronger side only if it beats
// the other by the configured margin. No separate threshold is applied
// to the resulting aggregate confidence.
func (e *Engine) weightedVoting(signals []types.StrategySignal) types.ConsensusDecision {
	var buyScore, sellScore float64
	var contributing []types.StrategySignal

	for _, sig := range signals {
		if sig.Direction == types.DirectionHold {
			continue
		}
		wc := e.cfg.weightFor(sig.Source)
		if sig.Confidence < wc.MinConfidence {
			continue
		}
		sig.Weight = wc.Weight
		contributing = append(contributing, sig)
		switch sig.Direction {
		case types.DirectionBuy:
			buyScore += wc.Weight * sig.Confidence
		case types.DirectionSell:
			sellScore += wc.Weight * sig.Confidence
		}
	}

	total := buyScore + sellScore
	if total == 0 {
		return types.ConsensusDecision{Direction: types.DirectionHold}
	}

	margin := math.Abs(buyScore-sellScore) / total
	if margin < e.cfg.MinMarginFraction {
		return types.ConsensusDecision{Direction: types.DirectionHold, Contributing: contributing}
	}

	if buyScore > sellScore {
		return types.ConsensusDecision{Direction: types.DirectionBuy, AggregateConfidence: buyScore / total, Contributing: contributing}
	}
	return types.ConsensusDecision{Direction: types.DirectionSell, AggregateConfidence: sellScore / total, Contributing: contributing}
}

func (e *Engine) single(signals []types.StrategySignal) types.ConsensusDecision {
	for _, sig := range signals {
		if sig.Direction != types.DirectionHold {
			return types.ConsensusDecision{Direction: sig.Direction, AggregateConfidence: sig.Confidence, Contributing: []types.StrategySignal{sig}}
		}
	}
	return types.ConsensusDecision{Direction: types.DirectionHold}
}

func (e *Engine) weightedAverage(signals []types.StrategySignal) types.ConsensusDecision {
	if len(signals) == 0 {
		return types.ConsensusDecision{Direction: types.DirectionHold}
	}
	var sum float64
	var n int
	for _, sig := range signals {
		sum += sig.Confidence
		n++
	}
	avg := sum / float64(n)
	if avg <= 0.6 {
		return types.ConsensusDecision{Direction: types.DirectionHold}
	}
	for _, sig := range signals {
		if sig.Direction != types.DirectionHold {
			return types.ConsensusDecision{Direction: sig.Direction, AggregateConfidence: avg, Contributing: []types.StrategySignal{sig}}
		}
	}
	return types.ConsensusDecision{Direction: types.DirectionHold}
}

func (e *Engine) majorityVote(signals []types.StrategySignal) types.ConsensusDecision {
	var bulls, bears int
	for _, sig := range signals {
		switch sig.Direction {
		case types.DirectionBuy:
			bulls++
		case types.DirectionSell:
			bears++
		}
	}
	switch {
	case bulls > bears:
		return types.ConsensusDecision{Direction: types.DirectionBuy, AggregateConfidence: 0.75}
	case bears > bulls:
		return types.ConsensusDecision{Direction: types.DirectionSell, AggregateConfidence: 0.75}
	default:
		return types.ConsensusDecision{Direction: types.DirectionHold}
	}
}

// UpdateWeights runs the EMA-smoothed weight update every
// update_frequency_cycles: w_new = alpha*confidence_recent +
// (1-alpha)*roi_recent, then smoothed toward the previous weight.
func (e *Engine) UpdateWeights(recentConfidence, recentROI map[types.SignalSource]float64) {
	e.cycle++
	if e.cfg.UpdateFrequency <= 0 || e.cycle%e.cfg.UpdateFrequency != 0 {
		return
	}
	for source, confidence := range recentConfidence {
		roi := recentROI[source]
		target := e.cfg.Alpha*confidence + (1-e.cfg.Alpha)*roi
		prev := e.cfg.weightFor(source)
		smoothed := e.cfg.WeightSmoothing*target + (1-e.cfg.WeightSmoothing)*prev.Weight
		e.cfg.Weights[source] = WeightConfig{Weight: smoothed, MinConfidence: prev.MinConfidence}
	}
}

// WeightFor exposes the current weight for a sub-strategy, primarily
// for observability and tests.
func (e *Engine) WeightFor(source types.SignalSource) WeightConfig {
	return e.cfg.weightFor(source)
}
