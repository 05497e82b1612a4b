package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/mev"
	"gridbot/internal/orderstate"
	"gridbot/internal/router"
	"gridbot/internal/rpcclient"
	"gridbot/internal/signer"
	"gridbot/internal/types"
)

type fakeRouter struct {
	outAmount       uint64
	impactBps       int
	quoteErr        error
	buildErr        error
	capturedFee     *uint64
}

func (f fakeRouter) Quote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (router.Quote, error) {
	if f.quoteErr != nil {
		return router.Quote{}, f.quoteErr
	}
	return router.Quote{InputMint: inputMint, OutputMint: outputMint, AmountIn: amountIn, OutAmount: f.outAmount, PriceImpactBps: f.impactBps}, nil
}

func (f fakeRouter) BuildSwap(ctx context.Context, quote router.Quote, userPubkey string, priorityFeeMicroLamports uint64) (router.UnsignedTx, error) {
	if f.buildErr != nil {
		return router.UnsignedTx{}, f.buildErr
	}
	if f.capturedFee != nil {
		*f.capturedFee = priorityFeeMicroLamports
	}
	return router.UnsignedTx{Payload: []byte("unsigned")}, nil
}

type fakeSigner struct {
	validateErr error
}

func (f fakeSigner) Pubkey() string { return "pubkey" }
func (f fakeSigner) Validate(ctx context.Context, amountQuote decimal.Decimal) error {
	return f.validateErr
}
func (f fakeSigner) Sign(ctx context.Context, tx router.UnsignedTx) (signer.SignedTx, error) {
	return signer.SignedTx{Payload: []byte("signed")}, nil
}

type fakeRPC struct {
	outcome rpcclient.ConfirmOutcome
}

func (f fakeRPC) Submit(ctx context.Context, signedTx []byte) (string, error) {
	return "sig-1", nil
}
func (f fakeRPC) Confirm(ctx context.Context, signature string, deadline time.Time) (rpcclient.ConfirmOutcome, error) {
	return f.outcome, nil
}
func (f fakeRPC) RecentPriorityFees(ctx context.Context, slotWindow int) ([]uint64, error) {
	return []uint64{100}, nil
}

func newTestPipeline(t *testing.T, rt router.SwapRouter, sg signer.Signer, outcome rpcclient.ConfirmOutcome) *Pipeline {
	t.Helper()
	pool := rpcclient.NewPool(map[string]rpcclient.RPC{"primary": fakeRPC{outcome: outcome}}, 3, time.Minute, zap.NewNop())
	guard := mev.New(mev.Config{BaseSlippageBps: 100, MaxSlippageBps: 500, VolatilitySlippageFactor: 1.0}, nil)
	tracker := orderstate.New()
	return New(Config{
		InputMint:        "SOL",
		OutputMint:       "USDC",
		BaseUnitsPerUnit: decimal.NewFromInt(1),
		SubmitRetries:    2,
		SubmitBackoff:    time.Millisecond,
		ConfirmTimeout:   time.Second,
	}, rt, sg, pool, guard, tracker, nil, zap.NewNop())
}

func testIntent() types.TradeIntent {
	return types.TradeIntent{
		Level:         &types.GridLevel{ID: "lvl-1", Side: types.SideBuy, State: types.LevelPlanned},
		Side:          types.SideBuy,
		ExpectedPrice: decimal.NewFromInt(10),
		Size:          decimal.NewFromInt(1),
	}
}

func TestExecuteConfirmedFill(t *testing.T) {
	p := newTestPipeline(t, fakeRouter{outAmount: 10}, fakeSigner{}, rpcclient.Confirmed)
	trade, err := p.Execute(context.Background(), testIntent(), types.RegimeRanging)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trade.TxID != "sig-1" {
		t.Fatalf("expected tx id sig-1, got %s", trade.TxID)
	}
}

func TestExecuteRejectsOnSlippage(t *testing.T) {
	p := newTestPipeline(t, fakeRouter{outAmount: 10, impactBps: 300}, fakeSigner{}, rpcclient.Confirmed)
	_, err := p.Execute(context.Background(), testIntent(), types.RegimeRanging)
	if err == nil {
		t.Fatalf("expected slippage rejection")
	}
}

func TestExecuteConfirmFailedExpiresLevel(t *testing.T) {
	intent := testIntent()
	p := newTestPipeline(t, fakeRouter{outAmount: 10}, fakeSigner{}, rpcclient.Failed)
	_, err := p.Execute(context.Background(), intent, types.RegimeRanging)
	if err == nil {
		t.Fatalf("expected execution failure on rejected confirmation")
	}
	if intent.Level.State != types.LevelExpired {
		t.Fatalf("expected level expired, got %v", intent.Level.State)
	}
}

func TestExecuteValidateRejected(t *testing.T) {
	p := newTestPipeline(t, fakeRouter{outAmount: 10}, fakeSigner{validateErr: signer.ErrExceedsPositionSize}, rpcclient.Confirmed)
	_, err := p.Execute(context.Background(), testIntent(), types.RegimeRanging)
	if err == nil {
		t.Fatalf("expected validate rejection")
	}
}

func TestExecuteSamplesAndAppliesPriorityFee(t *testing.T) {
	pool := rpcclient.NewPool(map[string]rpcclient.RPC{"primary": fakeRPC{outcome: rpcclient.Confirmed}}, 3, time.Minute, zap.NewNop())
	guard := mev.New(mev.Config{
		Enabled:                     true,
		PriorityFeePercentile:       50,
		SampleConcurrency:           1,
		MinPriorityFeeMicroLamports: 10,
		MaxPriorityFeeMicroLamports: 100000,
		BaseSlippageBps:             100,
		MaxSlippageBps:              500,
		VolatilitySlippageFactor:    1.0,
	}, nil)
	tracker := orderstate.New()
	var capturedFee uint64
	rt := fakeRouter{outAmount: 10, capturedFee: &capturedFee}
	p := New(Config{
		InputMint:        "SOL",
		OutputMint:       "USDC",
		BaseUnitsPerUnit: decimal.NewFromInt(1),
		SubmitRetries:    1,
		SubmitBackoff:    time.Millisecond,
		ConfirmTimeout:   time.Second,
	}, rt, fakeSigner{}, pool, guard, tracker, nil, zap.NewNop())

	if _, err := p.Execute(context.Background(), testIntent(), types.RegimeRanging); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// fakeRPC.RecentPriorityFees always returns {100}; at any percentile
	// the single-sample set resolves to 100, within [10,100000].
	if capturedFee != 100 {
		t.Fatalf("expected sampled priority fee 100, got %d", capturedFee)
	}
}

func TestExecuteDryRunNeverSubmits(t *testing.T) {
	intent := testIntent()
	p := newTestPipeline(t, fakeRouter{outAmount: 10}, fakeSigner{validateErr: signer.ErrExceedsPositionSize}, rpcclient.Confirmed)
	p.cfg.DryRun = true

	trade, err := p.Execute(context.Background(), intent, types.RegimeRanging)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if intent.Level.State != types.LevelFilled {
		t.Fatalf("expected level filled locally in dry run, got %v", intent.Level.State)
	}
	if trade.TxID == "sig-1" {
		t.Fatalf("dry run should never carry a real signature")
	}
}
