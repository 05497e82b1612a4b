// Package risk implements the risk controller (C8): the single-writer
// ledger of cumulative PnL, drawdown, and daily counters, plus the
// circuit breaker and stop-loss gates that block new trade intents
// once the account is unhealthy. Grounded on the Rust reference's
// risk/circuit_breaker.rs and risk/stop_loss.rs, adapted from their
// SOL-denominated equity tracking to the spec's venue-agnostic
// decimal PnL model (spec §9's PnL-precision open question: PnL is
// carried as decimal.Decimal throughout, never a rounded display
// value).
package risk

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/types"
)

var (
	// ErrBreakerTripped is returned by CheckIntent once drawdown has
	// crossed circuit_breaker_max_loss_pct and the cooldown has not
	// yet elapsed (or no cooldown is configured).
	ErrBreakerTripped = errors.New("risk: circuit breaker tripped")
	// ErrEmergencyHalt is returned once drawdown has crossed the
	// emergency threshold; only an operator reset clears this.
	ErrEmergencyHalt = errors.New("risk: emergency halt active")
	// ErrDailyTradesExceeded is returned when today's trade count has
	// reached max_daily_trades.
	ErrDailyTradesExceeded = errors.New("risk: daily trade count exceeded")
	// ErrDailyVolumeExceeded is returned when today's traded volume
	// would exceed max_daily_volume.
	ErrDailyVolumeExceeded = errors.New("risk: daily volume exceeded")
	// ErrPositionSizeExceeded is returned when the resulting position
	// would exceed max_position_size.
	ErrPositionSizeExceeded = errors.New("risk: position size exceeded")
)

// Config mirrors the risk tunables named in the configuration surface.
type Config struct {
	CircuitBreakerMaxLossPct float64
	EmergencyDrawdownPct     float64
	StopLossPct              float64
	MaxPositionSize          decimal.Decimal
	MaxDailyTrades           int
	MaxDailyVolume           decimal.Decimal
	BreakerCooldown          time.Duration
}

// Controller owns types.RiskState exclusively; every mutation happens
// on the orchestrator's tick-loop goroutine, so the internal mutex
// only guards Snapshot reads taken from elsewhere (metrics export,
// tests) against a concurrent tick.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    types.RiskState
	starting decimal.Decimal
	position decimal.Decimal
	dayStart time.Time
}

// New creates a Controller seeded with the session's starting equity,
// used as the initial peak for drawdown calculations.
func New(cfg Config, startingEquity decimal.Decimal, now time.Time) *Controller {
	return &Controller{
		cfg:      cfg,
		starting: startingEquity,
		dayStart: now,
		state: types.RiskState{
			PeakEquity: startingEquity,
		},
	}
}

// Snapshot returns a read-only copy of the current risk state.
func (c *Controller) Snapshot() types.RiskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CheckIntent gates a candidate trade intent per spec §4.8: reject if
// the breaker is tripped, an emergency halt is active, daily counters
// are exceeded, or the resulting position would exceed the configured
// maximum. A tripped breaker past its cooldown window clears itself
// here rather than requiring a separate poll.
func (c *Controller) CheckIntent(intent types.TradeIntent, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked(now)

	if c.state.EmergencyHalt {
		return ErrEmergencyHalt
	}
	if c.state.BreakerTripped {
		if c.cfg.BreakerCooldown > 0 && !c.state.BreakerTrippedAt.IsZero() && now.Sub(c.state.BreakerTrippedAt) >= c.cfg.BreakerCooldown {
			c.state.BreakerTripped = false
		} else {
			return ErrBreakerTripped
		}
	}
	if c.cfg.MaxDailyTrades > 0 && c.state.TradesToday >= c.cfg.MaxDailyTrades {
		return ErrDailyTradesExceeded
	}
	notional := intent.ExpectedPrice.Mul(intent.Size)
	if !c.cfg.MaxDailyVolume.IsZero() && c.state.VolumeToday.Add(notional).GreaterThan(c.cfg.MaxDailyVolume) {
		return ErrDailyVolumeExceeded
	}
	projected := c.position.Add(signedSize(intent))
	if !c.cfg.MaxPositionSize.IsZero() && projected.Abs().GreaterThan(c.cfg.MaxPositionSize) {
		return ErrPositionSizeExceeded
	}
	return nil
}

// RecordFill updates cumulative PnL, position, drawdown, and daily
// counters from a confirmed fill, then re-evaluates the breaker.
// Additions are commutative over confirmation order (spec §5), so
// fills may be recorded out of submission order safely.
func (c *Controller) RecordFill(trade types.FilledTrade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked(trade.Timestamp)

	c.state.CumulativePnL = c.state.CumulativePnL.Add(trade.PnL)
	c.state.TradesToday++
	c.state.VolumeToday = c.state.VolumeToday.Add(trade.ExecutedPrice.Mul(trade.Size))
	c.position = c.position.Add(signedFillSize(trade))

	equity := c.starting.Add(c.state.CumulativePnL)
	if equity.GreaterThan(c.state.PeakEquity) {
		c.state.PeakEquity = equity
	}
	c.state.CurrentDrawdownPct = drawdownPct(c.state.PeakEquity, equity)

	c.evaluateBreakerLocked(trade.Timestamp)
}

// CheckStopLoss evaluates the unrealized loss percentage on the
// current open position against stop_loss_pct, tripping the same
// breaker the drawdown check uses (spec §9 supplement: the source's
// stop_loss.rs and circuit_breaker.rs both land on one breaker flag).
func (c *Controller) CheckStopLoss(unrealizedPnLPct float64, now time.Time) {
	if c.cfg.StopLossPct <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if unrealizedPnLPct <= -c.cfg.StopLossPct && !c.state.BreakerTripped {
		c.state.BreakerTripped = true
		c.state.BreakerTrippedAt = now
	}
}

// ResetBreaker clears a tripped breaker on manual operator
// intervention. It does not clear an emergency halt.
func (c *Controller) ResetBreaker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.BreakerTripped = false
	c.state.BreakerTrippedAt = time.Time{}
}

// ResetEmergencyHalt clears an emergency halt on manual operator
// intervention.
func (c *Controller) ResetEmergencyHalt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.EmergencyHalt = false
}

func (c *Controller) evaluateBreakerLocked(now time.Time) {
	if !c.state.BreakerTripped && c.cfg.CircuitBreakerMaxLossPct > 0 && c.state.CurrentDrawdownPct >= c.cfg.CircuitBreakerMaxLossPct {
		c.state.BreakerTripped = true
		c.state.BreakerTrippedAt = now
	}
	if !c.state.EmergencyHalt && c.cfg.EmergencyDrawdownPct > 0 && c.state.CurrentDrawdownPct >= c.cfg.EmergencyDrawdownPct {
		c.state.EmergencyHalt = true
	}
}

// rollDayLocked resets the daily counters once 24h have elapsed since
// the window started. A simple rolling window, not a calendar-day
// boundary, keeps this deterministic under test without a clock
// dependency.
func (c *Controller) rollDayLocked(now time.Time) {
	if now.IsZero() {
		return
	}
	if c.dayStart.IsZero() {
		c.dayStart = now
		return
	}
	if now.Sub(c.dayStart) >= 24*time.Hour {
		c.dayStart = now
		c.state.TradesToday = 0
		c.state.VolumeToday = decimal.Zero
	}
}

func drawdownPct(peak, equity decimal.Decimal) float64 {
	if !peak.IsPositive() {
		return 0
	}
	dd := peak.Sub(equity).Div(peak).Mul(decimal.NewFromInt(100))
	if dd.IsNegative() {
		return 0
	}
	return dd.InexactFloat64()
}

func signedSize(intent types.TradeIntent) decimal.Decimal {
	if intent.Side == types.SideSell {
		return intent.Size.Neg()
	}
	return intent.Size
}

func signedFillSize(trade types.FilledTrade) decimal.Decimal {
	if trade.Side == types.SideSell {
		return trade.Size.Neg()
	}
	return trade.Size
}
