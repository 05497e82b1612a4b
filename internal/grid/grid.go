// Package grid implements the grid rebalancer (C5): owns the current
// grid snapshot, decides when the anchor has drifted far enough to
// warrant a fresh snapshot, flags stale Open levels for refresh, and
// applies the regime gate that blocks new order placement in thin
// volatility. Levels themselves are placed symmetrically around the
// anchor and sized from the adaptive optimizer's current output.
// Grounded on the Rust reference's GridRebalancer/GridLevel, adapted
// from its SOL/USDC-specific balance checks to the spec's
// venue-agnostic, generation-indexed snapshot model.
package grid

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/types"
)

// Config carries every tunable named in the configuration surface
// that governs grid shape and lifecycle.
type Config struct {
	GridLevels            int
	RepositionThreshold    float64
	OrderMaxAge            time.Duration
	OrderRefreshInterval   time.Duration
	MinVolatilityToTrade   float64
	EnableRegimeGate       bool
}

// Rebalancer owns exactly one grid snapshot at a time, swapped
// wholesale on reposition.
type Rebalancer struct {
	cfg      Config
	current  *types.GridSnapshot
	nextID   uint64
	nextGen  uint64
}

func New(cfg Config) *Rebalancer {
	return &Rebalancer{cfg: cfg}
}

// Current returns the active snapshot, or nil before the first build.
func (r *Rebalancer) Current() *types.GridSnapshot {
	return r.current
}

// NeedsReposition reports whether price has drifted outside
// reposition_threshold * spacing of the current anchor. A nil
// snapshot always needs a first build.
func (r *Rebalancer) NeedsReposition(price decimal.Decimal) bool {
	if r.current == nil {
		return true
	}
	if r.current.AnchorPrice.IsZero() {
		return true
	}
	spacingBand := r.current.AnchorPrice.Mul(decimal.NewFromFloat(r.current.SpacingPercent / 100.0 * r.cfg.RepositionThreshold))
	drift := price.Sub(r.current.AnchorPrice).Abs()
	return drift.GreaterThan(spacingBand)
}

// StaleLevels returns the Open levels in the current snapshot
// whose age exceeds order_max_age, or whose last refresh exceeds
// order_refresh_interval, as of now.
func (r *Rebalancer) StaleLevels(now time.Time) []*types.GridLevel {
	if r.current == nil {
		return nil
	}
	var stale []*types.GridLevel
	for _, lvl := range r.current.Levels {
		if lvl.State != types.LevelOpen {
			continue
		}
		if r.cfg.OrderMaxAge > 0 && now.Sub(lvl.PlacedAt) > r.cfg.OrderMaxAge {
			stale = append(stale, lvl)
			continue
		}
		if r.cfg.OrderRefreshInterval > 0 && now.Sub(lvl.LastRefreshAt) > r.cfg.OrderRefreshInterval {
			stale = append(stale, lvl)
		}
	}
	return stale
}

// RegimeBlocksNewOrders reports whether the regime gate forbids
// placing new orders this cycle. Existing resting orders may still
// fill; this only affects fresh level placement.
func (r *Rebalancer) RegimeBlocksNewOrders(regime types.RegimeKind, currentVolatilityPct float64) bool {
	if !r.cfg.EnableRegimeGate {
		return false
	}
	if regime == types.RegimeEmergency {
		return true
	}
	if regime == types.RegimeLowVolatility && currentVolatilityPct < r.cfg.MinVolatilityToTrade {
		return true
	}
	return false
}

// Reposition cancels every non-terminal level in the current snapshot
// and builds a fresh one anchored at anchorPrice, with spacingPercent
// and levelSize sourced from the optimizer. Buys are placed strictly
// below the anchor, sells strictly above, with the first level of
// each side exactly one spacing step away (the anchor itself never
// hosts a level).
func (r *Rebalancer) Reposition(anchorPrice decimal.Decimal, spacingPercent float64, levelSize decimal.Decimal, now time.Time) *types.GridSnapshot {
	if r.current != nil {
		for _, lvl := range r.current.Levels {
			if !lvl.State.Terminal() {
				lvl.State = types.LevelCancelled
			}
		}
	}

	r.nextGen++
	perSide := r.cfg.GridLevels / 2
	levels := make([]*types.GridLevel, 0, perSide*2)
	spacingFrac := decimal.NewFromFloat(spacingPercent / 100.0)

	for k := 1; k <= perSide; k++ {
		step := spacingFrac.Mul(decimal.NewFromInt(int64(k)))
		buyPrice := anchorPrice.Mul(decimal.NewFromInt(1).Sub(step))
		levels = append(levels, r.newLevel(types.SideBuy, buyPrice, levelSize, r.nextGen, now))
	}
	for k := 1; k <= perSide; k++ {
		step := spacingFrac.Mul(decimal.NewFromInt(int64(k)))
		sellPrice := anchorPrice.Mul(decimal.NewFromInt(1).Add(step))
		levels = append(levels, r.newLevel(types.SideSell, sellPrice, levelSize, r.nextGen, now))
	}

	r.current = &types.GridSnapshot{
		AnchorPrice:    anchorPrice,
		SpacingPercent: spacingPercent,
		Levels:         levels,
		Generation:     r.nextGen,
	}
	return r.current
}

func (r *Rebalancer) newLevel(side types.Side, price, size decimal.Decimal, generation uint64, now time.Time) *types.GridLevel {
	r.nextID++
	return &types.GridLevel{
		ID:            fmt.Sprintf("lvl-%d-%d", generation, r.nextID),
		Side:          side,
		Price:         price,
		Size:          size,
		State:         types.LevelPlanned,
		Generation:    generation,
		PlacedAt:      now,
		LastRefreshAt: now,
	}
}

// Efficiency reports the fraction of levels in the current snapshot
// that reached Filled, feeding the optimizer's performance window.
func (r *Rebalancer) Efficiency() float64 {
	if r.current == nil || len(r.current.Levels) == 0 {
		return 0
	}
	filled := 0
	for _, lvl := range r.current.Levels {
		if lvl.State == types.LevelFilled {
			filled++
		}
	}
	return float64(filled) / float64(len(r.current.Levels))
}
