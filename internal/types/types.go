// Package types holds the domain value types shared across components,
// kept separate from any single component to avoid import cycles.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is which side of the book a grid level or trade intent sits on.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// PriceTick is a single observation from a PriceFeed. Timestamps are
// monotonic within a feed; ticks are ordered and never reordered by
// the consumer.
type PriceTick struct {
	Price      decimal.Decimal
	Timestamp  time.Time
	Confidence decimal.Decimal
	HasConfidence bool
}

// LevelState is the order-lifecycle state of a single grid level,
// owned exclusively by the order-lifecycle state machine.
type LevelState int

const (
	LevelPlanned LevelState = iota
	LevelOpen
	LevelFilled
	LevelExpired
	LevelCancelled
)

func (s LevelState) String() string {
	switch s {
	case LevelPlanned:
		return "planned"
	case LevelOpen:
		return "open"
	case LevelFilled:
		return "filled"
	case LevelExpired:
		return "expired"
	case LevelCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state accepts no further transitions.
func (s LevelState) Terminal() bool {
	return s == LevelFilled || s == LevelExpired || s == LevelCancelled
}

// GridLevel is a single planned or resting order at a specific price
// on one side of a grid snapshot.
type GridLevel struct {
	ID            string
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	State         LevelState
	Generation    uint64
	PlacedAt      time.Time
	LastRefreshAt time.Time
	VenueOrderID  string
}

// GridSnapshot is one immutable generation of the grid. A new
// snapshot's levels are placed fresh; the previous snapshot's levels
// transition to Cancelled before the new one is armed.
type GridSnapshot struct {
	AnchorPrice    decimal.Decimal
	SpacingPercent float64
	Levels         []*GridLevel
	Generation     uint64
}

// RegimeKind is the qualitative market state used to gate and tune
// trading.
type RegimeKind int

const (
	RegimeRanging RegimeKind = iota
	RegimeTrendingUp
	RegimeTrendingDown
	RegimeHighVolatility
	RegimeLowVolatility
	RegimeEmergency
)

func (r RegimeKind) String() string {
	switch r {
	case RegimeTrendingUp:
		return "trending_up"
	case RegimeTrendingDown:
		return "trending_down"
	case RegimeHighVolatility:
		return "high_volatility"
	case RegimeLowVolatility:
		return "low_volatility"
	case RegimeEmergency:
		return "emergency"
	default:
		return "ranging"
	}
}

// SignalSource identifies which sub-strategy produced a StrategySignal.
type SignalSource int

const (
	SourceGrid SignalSource = iota
	SourceRSI
	SourceMomentum
)

func (s SignalSource) String() string {
	switch s {
	case SourceRSI:
		return "rsi"
	case SourceMomentum:
		return "momentum"
	default:
		return "grid"
	}
}

// Direction is a trading intent direction, including the neutral Hold.
type Direction int

const (
	DirectionHold Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "hold"
	}
}

// StrategySignal is an ephemeral per-cycle vote from one sub-strategy.
type StrategySignal struct {
	Source     SignalSource
	Direction  Direction
	Confidence float64
	Weight     float64
	Level      *GridLevel
}

// ConsensusDecision is the aggregated outcome of C6 for one cycle. A
// Hold decision carries no contributing signals requirement.
type ConsensusDecision struct {
	Direction           Direction
	AggregateConfidence float64
	Contributing        []StrategySignal
	GridOnly            bool
}

// TradeIntent is produced by the grid rebalancer plus consensus and
// consumed by the fee filter, risk controller, and execution pipeline.
type TradeIntent struct {
	Level         *GridLevel
	Side          Side
	ExpectedPrice decimal.Decimal
	Size          decimal.Decimal
}

// FilledTrade is an append-only record owned by the risk controller,
// produced on confirmed execution and consumed by the optimizer's
// performance window.
type FilledTrade struct {
	Side          Side
	ExpectedPrice decimal.Decimal
	ExecutedPrice decimal.Decimal
	Size          decimal.Decimal
	Fees          decimal.Decimal
	PnL           decimal.Decimal
	Timestamp     time.Time
	TxID          string
}

// RiskState is the single-writer risk ledger, owned by the risk
// controller and read only by orchestrator gating logic.
type RiskState struct {
	CumulativePnL      decimal.Decimal
	PeakEquity         decimal.Decimal
	CurrentDrawdownPct float64
	TradesToday        int
	VolumeToday        decimal.Decimal
	BreakerTripped     bool
	BreakerTrippedAt   time.Time
	EmergencyHalt      bool
}
