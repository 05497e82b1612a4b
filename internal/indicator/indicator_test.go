package indicator

import (
	"errors"
	"math"
	"testing"
)

func TestEngineWarmsUpWithInsufficientHistory(t *testing.T) {
	eng := NewEngine()
	_, err := eng.Update(100.0)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected insufficient history on first tick, got %v", err)
	}
}

func TestEngineBecomesReadyAfterWarmup(t *testing.T) {
	eng := NewEngine()
	var err error
	for i := 0; i < 260; i++ {
		price := 100.0 + float64(i%5)*0.1
		_, err = eng.Update(price)
	}
	if err != nil {
		t.Fatalf("expected engine ready after 260 ticks, got %v", err)
	}
}

func TestRSIStaysWithinBounds(t *testing.T) {
	eng := NewEngine()
	for i := 0; i < 260; i++ {
		price := 100.0 + float64(i)*0.3
		snap, err := eng.Update(price)
		if err == nil {
			if snap.RSI < 0 || snap.RSI > 100 {
				t.Fatalf("rsi %v out of [0,100] bounds", snap.RSI)
			}
		}
	}
}

func TestRSIRisesOnSustainedUptrend(t *testing.T) {
	eng := NewEngine()
	var last float64
	var sawReady bool
	for i := 0; i < 260; i++ {
		price := 100.0 + float64(i)
		snap, err := eng.Update(price)
		if err == nil {
			sawReady = true
			last = snap.RSI
		}
	}
	if !sawReady {
		t.Fatalf("expected RSI to become ready")
	}
	if last < 60 {
		t.Fatalf("expected high RSI on sustained uptrend, got %v", last)
	}
}

func TestATRPercentileWithinBounds(t *testing.T) {
	eng := NewEngine()
	for i := 0; i < 220; i++ {
		price := 100.0 + math.Sin(float64(i)/3.0)*2
		snap, err := eng.Update(price)
		if err == nil {
			if snap.ATRPercentile < 0 || snap.ATRPercentile > 1 {
				t.Fatalf("atr percentile %v out of [0,1] bounds", snap.ATRPercentile)
			}
		}
	}
}

func TestMACDHistogramIsDifferenceOfMACDAndSignal(t *testing.T) {
	eng := NewEngine()
	var snap Snapshot
	for i := 0; i < 260; i++ {
		snap, _ = eng.Update(100.0 + float64(i)*0.2)
	}
	want := snap.MACD - snap.MACDSignal
	if math.Abs(snap.MACDHistogram-want) > 1e-9 {
		t.Fatalf("histogram %v does not equal macd-signal %v", snap.MACDHistogram, want)
	}
}

func TestFlatPriceProducesZeroATR(t *testing.T) {
	eng := NewEngine()
	var snap Snapshot
	for i := 0; i < 40; i++ {
		snap, _ = eng.Update(100.0)
	}
	if snap.ATR != 0 {
		t.Fatalf("expected zero ATR on flat price series, got %v", snap.ATR)
	}
}
