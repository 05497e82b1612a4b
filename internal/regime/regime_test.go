package regime

import (
	"testing"

	"gridbot/internal/indicator"
	"gridbot/internal/types"
)

func TestClassifyEmergencyOverridesVolatility(t *testing.T) {
	c := New(Config{EmergencyDrawdownPct: 10})
	got := c.Classify(indicator.Snapshot{ATRPercentile: 0.9}, 12.0)
	if got != types.RegimeEmergency {
		t.Fatalf("expected emergency, got %v", got)
	}
}

func TestClassifyHighVolatility(t *testing.T) {
	c := New(Config{})
	got := c.Classify(indicator.Snapshot{ATRPercentile: 0.7}, 0)
	if got != types.RegimeHighVolatility {
		t.Fatalf("expected high volatility, got %v", got)
	}
}

func TestClassifyLowVolatility(t *testing.T) {
	c := New(Config{})
	got := c.Classify(indicator.Snapshot{ATRPercentile: 0.2}, 0)
	if got != types.RegimeLowVolatility {
		t.Fatalf("expected low volatility, got %v", got)
	}
}

func TestClassifyTrendingUp(t *testing.T) {
	c := New(Config{})
	got := c.Classify(indicator.Snapshot{ATRPercentile: 0.5, Price: 100, EMAFast: 101, EMASlow: 100}, 0)
	if got != types.RegimeTrendingUp {
		t.Fatalf("expected trending up, got %v", got)
	}
}

func TestClassifyTrendingDown(t *testing.T) {
	c := New(Config{})
	got := c.Classify(indicator.Snapshot{ATRPercentile: 0.5, Price: 100, EMAFast: 98.5, EMASlow: 100}, 0)
	if got != types.RegimeTrendingDown {
		t.Fatalf("expected trending down, got %v", got)
	}
}

func TestClassifyRangingWhenNoSignalFires(t *testing.T) {
	c := New(Config{})
	got := c.Classify(indicator.Snapshot{ATRPercentile: 0.5, Price: 100, EMAFast: 100.1, EMASlow: 100}, 0)
	if got != types.RegimeRanging {
		t.Fatalf("expected ranging, got %v", got)
	}
}
