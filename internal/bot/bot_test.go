package bot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/consensus"
	"gridbot/internal/feefilter"
	"gridbot/internal/grid"
	"gridbot/internal/optimizer"
	"gridbot/internal/orderstate"
	"gridbot/internal/regime"
	"gridbot/internal/risk"
	"gridbot/internal/types"
)

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	reb := grid.New(grid.Config{GridLevels: 4, RepositionThreshold: 2.0})
	reb.Reposition(decimal.NewFromInt(100), 1.0, decimal.NewFromInt(1), time.Unix(0, 0))

	return New(
		Config{OptimizationIntervalCycles: 5, PerformanceWindowSize: 10},
		nil,
		nil,
		regime.New(regime.Config{}),
		optimizer.New(optimizer.Config{BaseSpacingPercent: 1.0, BasePositionSize: 1.0, MinSpacingAbsolute: 0.1, MaxSpacingAbsolute: 5, MinPositionAbsolute: 0.1, MaxPositionAbsolute: 5}),
		feefilter.New(feefilter.Config{Enabled: false}),
		reb,
		consensus.New(consensus.Config{}),
		risk.New(risk.Config{}, decimal.NewFromInt(1000), time.Unix(0, 0)),
		orderstate.New(),
		nil,
		nil,
		nil,
		zap.NewNop(),
	)
}

func TestDetectCrossingFindsNearestBuyLevel(t *testing.T) {
	b := newTestBot(t)
	lvl, dist := b.detectCrossing(decimal.NewFromInt(98))
	if lvl == nil {
		t.Fatalf("expected a crossed buy level")
	}
	if lvl.Side != types.SideBuy {
		t.Fatalf("expected buy level, got %v", lvl.Side)
	}
	if dist < 0 {
		t.Fatalf("expected non-negative distance, got %f", dist)
	}
}

func TestDetectCrossingNoneWithinBand(t *testing.T) {
	b := newTestBot(t)
	lvl, _ := b.detectCrossing(decimal.NewFromInt(100))
	if lvl != nil {
		t.Fatalf("expected no crossing at anchor price, got %+v", lvl)
	}
}

func TestBuildIntentUsesLevelPriceAndSize(t *testing.T) {
	b := newTestBot(t)
	lvl, _ := b.detectCrossing(decimal.NewFromInt(98))
	decision := types.ConsensusDecision{
		Direction:    types.DirectionBuy,
		Contributing: []types.StrategySignal{{Source: types.SourceGrid, Direction: types.DirectionBuy, Level: lvl}},
	}
	intent, ok := b.buildIntent(decision, decimal.NewFromInt(98))
	if !ok {
		t.Fatalf("expected intent built")
	}
	if !intent.ExpectedPrice.Equal(lvl.Price) {
		t.Fatalf("expected intent price to match level price, got %s vs %s", intent.ExpectedPrice, lvl.Price)
	}
	if !intent.Size.Equal(lvl.Size) {
		t.Fatalf("expected intent size to match level size, got %s vs %s", intent.Size, lvl.Size)
	}
}

func TestMaybeOptimizeOnlyRunsOnInterval(t *testing.T) {
	b := newTestBot(t)
	before := b.optimizer.AdjustmentCount()
	b.cycle = 1
	b.maybeOptimize()
	if b.optimizer.AdjustmentCount() != before {
		t.Fatalf("expected no optimize on non-interval cycle")
	}
	b.cycle = 5
	b.maybeOptimize()
	// whether or not it adjusts depends on hysteresis; this just
	// verifies the interval gate itself doesn't panic or skip silently.
}

func TestOnTickDropsNonMonotonicTick(t *testing.T) {
	b := newTestBot(t)
	last := time.Unix(1000, 0)
	b.lastTickAt = last

	b.onTick(context.Background(), types.PriceTick{Price: decimal.NewFromInt(100), Timestamp: last})
	if b.cycle != 0 {
		t.Fatalf("expected same-timestamp tick to be dropped, cycle advanced to %d", b.cycle)
	}
	if b.lastTickAt != last {
		t.Fatalf("expected lastTickAt unchanged by a dropped tick")
	}

	b.onTick(context.Background(), types.PriceTick{Price: decimal.NewFromInt(100), Timestamp: last.Add(-time.Second)})
	if b.cycle != 0 {
		t.Fatalf("expected earlier tick to be dropped, cycle advanced to %d", b.cycle)
	}
}

func TestShutdownCancelsActiveLevels(t *testing.T) {
	b := newTestBot(t)
	snapshot := b.grid.Current()
	for _, lvl := range snapshot.Levels {
		b.tracker.Arm(lvl)
	}
	_ = b.tracker.Open(snapshot.Levels[0].ID, "venue-1", time.Unix(0, 0))

	if err := b.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if b.tracker.ActiveCount() != 0 {
		t.Fatalf("expected no active levels after shutdown, got %d", b.tracker.ActiveCount())
	}
}
