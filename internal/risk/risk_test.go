package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCheckIntentAllowsWithinLimits(t *testing.T) {
	cfg := Config{
		MaxDailyTrades:  10,
		MaxDailyVolume:  dec("100000"),
		MaxPositionSize: dec("50"),
	}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("1")}
	if err := c.CheckIntent(intent, time.Unix(0, 0)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheckIntentDailyTradesExceeded(t *testing.T) {
	cfg := Config{MaxDailyTrades: 1}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	c.state.TradesToday = 1
	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("1")}
	if err := c.CheckIntent(intent, time.Unix(0, 0)); err != ErrDailyTradesExceeded {
		t.Fatalf("expected ErrDailyTradesExceeded, got %v", err)
	}
}

func TestCheckIntentPositionSizeExceeded(t *testing.T) {
	cfg := Config{MaxPositionSize: dec("1")}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("2")}
	if err := c.CheckIntent(intent, time.Unix(0, 0)); err != ErrPositionSizeExceeded {
		t.Fatalf("expected ErrPositionSizeExceeded, got %v", err)
	}
}

func TestRecordFillTripsBreakerOnDrawdown(t *testing.T) {
	cfg := Config{CircuitBreakerMaxLossPct: 10}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	trade := types.FilledTrade{
		Side:          types.SideSell,
		ExecutedPrice: dec("10"),
		Size:          dec("1"),
		PnL:           dec("-150"),
		Timestamp:     time.Unix(100, 0),
	}
	c.RecordFill(trade)

	snap := c.Snapshot()
	if !snap.BreakerTripped {
		t.Fatalf("expected breaker tripped at 15%% drawdown, got state %+v", snap)
	}

	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("1")}
	if err := c.CheckIntent(intent, time.Unix(101, 0)); err != ErrBreakerTripped {
		t.Fatalf("expected ErrBreakerTripped, got %v", err)
	}
}

func TestBreakerClearsAfterCooldown(t *testing.T) {
	cfg := Config{CircuitBreakerMaxLossPct: 10, BreakerCooldown: time.Minute}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	trade := types.FilledTrade{Side: types.SideSell, ExecutedPrice: dec("10"), Size: dec("1"), PnL: dec("-150"), Timestamp: time.Unix(0, 0)}
	c.RecordFill(trade)

	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("1")}
	if err := c.CheckIntent(intent, time.Unix(30, 0)); err != ErrBreakerTripped {
		t.Fatalf("expected still tripped before cooldown, got %v", err)
	}
	if err := c.CheckIntent(intent, time.Unix(90, 0)); err != nil {
		t.Fatalf("expected breaker cleared after cooldown, got %v", err)
	}
}

func TestEmergencyHaltRequiresManualReset(t *testing.T) {
	cfg := Config{EmergencyDrawdownPct: 20, BreakerCooldown: time.Second}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	trade := types.FilledTrade{Side: types.SideSell, ExecutedPrice: dec("10"), Size: dec("1"), PnL: dec("-300"), Timestamp: time.Unix(0, 0)}
	c.RecordFill(trade)

	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("1")}
	if err := c.CheckIntent(intent, time.Unix(1000, 0)); err != ErrEmergencyHalt {
		t.Fatalf("expected ErrEmergencyHalt to persist past cooldown, got %v", err)
	}
	c.ResetEmergencyHalt()
	if err := c.CheckIntent(intent, time.Unix(1001, 0)); err != nil {
		t.Fatalf("expected clear after manual reset, got %v", err)
	}
}

func TestRollDayResetsCounters(t *testing.T) {
	cfg := Config{MaxDailyTrades: 1}
	c := New(cfg, dec("1000"), time.Unix(0, 0))
	c.state.TradesToday = 1

	intent := types.TradeIntent{Side: types.SideBuy, ExpectedPrice: dec("10"), Size: dec("1")}
	if err := c.CheckIntent(intent, time.Unix(0, 0).Add(25*time.Hour)); err != nil {
		t.Fatalf("expected trade count reset after day roll, got %v", err)
	}
}
