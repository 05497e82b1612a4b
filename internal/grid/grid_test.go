package grid

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/types"
)

func baseConfig() Config {
	return Config{
		GridLevels:           8,
		RepositionThreshold:   0.9,
		OrderMaxAge:           10 * time.Minute,
		OrderRefreshInterval:  5 * time.Minute,
		MinVolatilityToTrade:  0.5,
		EnableRegimeGate:      true,
	}
}

func TestFirstRepositionAlwaysNeeded(t *testing.T) {
	r := New(baseConfig())
	if !r.NeedsReposition(decimal.NewFromFloat(100)) {
		t.Fatalf("expected first tick to require a reposition")
	}
}

func TestRepositionPlacesSymmetricLevels(t *testing.T) {
	r := New(baseConfig())
	now := time.Now()
	snap := r.Reposition(decimal.NewFromFloat(100), 0.20, decimal.NewFromFloat(1), now)

	var buys, sells int
	for _, lvl := range snap.Levels {
		if lvl.Price.Equal(snap.AnchorPrice) {
			t.Fatalf("no level should sit exactly at the anchor, got price %v", lvl.Price)
		}
		switch lvl.Side {
		case types.SideBuy:
			buys++
			if !lvl.Price.LessThan(snap.AnchorPrice) {
				t.Fatalf("buy level %v must be strictly below anchor %v", lvl.Price, snap.AnchorPrice)
			}
		case types.SideSell:
			sells++
			if !lvl.Price.GreaterThan(snap.AnchorPrice) {
				t.Fatalf("sell level %v must be strictly above anchor %v", lvl.Price, snap.AnchorPrice)
			}
		}
	}
	if buys != 4 || sells != 4 {
		t.Fatalf("expected 4 buys and 4 sells for grid_levels=8, got buys=%d sells=%d", buys, sells)
	}
}

func TestRepositionCancelsPriorLevels(t *testing.T) {
	r := New(baseConfig())
	now := time.Now()
	first := r.Reposition(decimal.NewFromFloat(100), 0.20, decimal.NewFromFloat(1), now)
	firstLevels := append([]*types.GridLevel{}, first.Levels...)

	r.Reposition(decimal.NewFromFloat(102), 0.20, decimal.NewFromFloat(1), now)

	for _, lvl := range firstLevels {
		if lvl.State != types.LevelCancelled {
			t.Fatalf("expected prior-generation level to be cancelled, got %v", lvl.State)
		}
	}
}

func TestRepositionPreservesTerminalLevels(t *testing.T) {
	r := New(baseConfig())
	now := time.Now()
	first := r.Reposition(decimal.NewFromFloat(100), 0.20, decimal.NewFromFloat(1), now)
	first.Levels[0].State = types.LevelFilled

	r.Reposition(decimal.NewFromFloat(102), 0.20, decimal.NewFromFloat(1), now)

	if first.Levels[0].State != types.LevelFilled {
		t.Fatalf("filled level must not be overwritten by reposition, got %v", first.Levels[0].State)
	}
}

func TestNoRepositionWithinBand(t *testing.T) {
	r := New(baseConfig())
	now := time.Now()
	r.Reposition(decimal.NewFromFloat(100), 1.0, decimal.NewFromFloat(1), now)
	if r.NeedsReposition(decimal.NewFromFloat(100.1)) {
		t.Fatalf("price within reposition band should not trigger a new snapshot")
	}
}

func TestRepositionTriggersOutsideBand(t *testing.T) {
	r := New(baseConfig())
	now := time.Now()
	r.Reposition(decimal.NewFromFloat(100), 0.20, decimal.NewFromFloat(1), now)
	if !r.NeedsReposition(decimal.NewFromFloat(102)) {
		t.Fatalf("price far outside band should trigger a new snapshot")
	}
}

func TestStaleLevelsDetectedByMaxAge(t *testing.T) {
	cfg := baseConfig()
	r := New(cfg)
	placedAt := time.Now().Add(-20 * time.Minute)
	snap := r.Reposition(decimal.NewFromFloat(100), 0.20, decimal.NewFromFloat(1), placedAt)
	snap.Levels[0].State = types.LevelOpen

	stale := r.StaleLevels(placedAt.Add(20 * time.Minute))
	if len(stale) == 0 {
		t.Fatalf("expected at least one stale level past order_max_age")
	}
}

func TestRegimeGateBlocksLowVolatility(t *testing.T) {
	r := New(baseConfig())
	if !r.RegimeBlocksNewOrders(types.RegimeLowVolatility, 0.1) {
		t.Fatalf("expected regime gate to block low-volatility, below-threshold trading")
	}
}

func TestRegimeGateAllowsSufficientVolatility(t *testing.T) {
	r := New(baseConfig())
	if r.RegimeBlocksNewOrders(types.RegimeLowVolatility, 0.9) {
		t.Fatalf("expected regime gate to allow trading once volatility clears threshold")
	}
}

func TestRegimeGateDisabledNeverBlocks(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableRegimeGate = false
	r := New(cfg)
	if r.RegimeBlocksNewOrders(types.RegimeEmergency, 0.0) {
		t.Fatalf("disabled regime gate must never block")
	}
}

func TestEfficiencyIsFilledOverTotal(t *testing.T) {
	r := New(baseConfig())
	snap := r.Reposition(decimal.NewFromFloat(100), 0.20, decimal.NewFromFloat(1), time.Now())
	snap.Levels[0].State = types.LevelFilled
	snap.Levels[1].State = types.LevelFilled

	got := r.Efficiency()
	want := 2.0 / float64(len(snap.Levels))
	if got != want {
		t.Fatalf("efficiency = %v, want %v", got, want)
	}
}
