// Package execution implements the execution pipeline (C10): the one
// place a trade intent becomes an on-venue order. Quote, check
// slippage through the MEV guardian, validate against signer-side
// limits, sample the priority fee, build the unsigned swap, sign,
// submit with bounded retry through the RPC pool, and poll for
// confirmation. Grounded on the teacher's
// internal/exec.Executor — same bounded exponential backoff —
// generalized from a single REST client to the router/signer/rpcclient
// trio the spec's external interfaces define. Each Execute call uses a
// fresh client order ID; the idempotency store is written but not
// consulted before submitting.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/mev"
	"gridbot/internal/orderstate"
	"gridbot/internal/router"
	"gridbot/internal/rpcclient"
	"gridbot/internal/signer"
	"gridbot/internal/store"
	"gridbot/internal/types"
)

// ErrExecutionFailed wraps any terminal failure of one Execute call,
// carrying the client order ID so callers can correlate against
// store.PendingExecution without re-parsing error text.
type ErrExecutionFailed struct {
	ClientOrderID string
	Err           error
}

func (e *ErrExecutionFailed) Error() string {
	return fmt.Sprintf("execution: %s failed: %v", e.ClientOrderID, e.Err)
}

func (e *ErrExecutionFailed) Unwrap() error { return e.Err }

// Config carries the execution-facing tunables named in the
// configuration surface.
type Config struct {
	InputMint       string
	OutputMint      string
	BaseUnitsPerUnit decimal.Decimal
	SlippageBps      int
	SubmitRetries    int
	SubmitBackoff    time.Duration
	ConfirmTimeout   time.Duration

	// DryRun stops the pipeline right after the slippage check: no
	// signature, submission, or confirmation happens, and the level is
	// marked filled locally so the orchestrator's bookkeeping still
	// advances during paper-trading runs.
	DryRun bool
}

// Pipeline composes every collaborator Execute needs: a quote/build
// router, a validating signer, the RPC pool, the MEV guardian, the
// order-lifecycle tracker, and the local idempotency store.
type Pipeline struct {
	cfg     Config
	router  router.SwapRouter
	signer  signer.Signer
	rpc     *rpcclient.Pool
	guard   *mev.Guardian
	tracker *orderstate.Tracker
	store   *store.Store
	log     *zap.Logger
}

func New(cfg Config, r router.SwapRouter, s signer.Signer, rpc *rpcclient.Pool, guard *mev.Guardian, tracker *orderstate.Tracker, st *store.Store, log *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, router: r, signer: s, rpc: rpc, guard: guard, tracker: tracker, store: st, log: log}
}

// Execute runs one trade intent through quote, slippage check,
// validate, priority fee, build, sign, submit-with-retry, and confirm. The level is armed
// in the tracker before submission so a crash mid-flight still leaves
// a visible non-terminal level for recovery to find.
func (p *Pipeline) Execute(ctx context.Context, intent types.TradeIntent, regime types.RegimeKind) (types.FilledTrade, error) {
	clientOrderID := uuid.NewString()
	if intent.Level != nil {
		p.tracker.Arm(intent.Level)
	}

	amountIn := intent.Size.Mul(intent.ExpectedPrice)
	amountInBaseUnits := toBaseUnits(amountIn, p.cfg.BaseUnitsPerUnit)
	quote, err := p.router.Quote(ctx, p.cfg.InputMint, p.cfg.OutputMint, amountInBaseUnits, p.cfg.SlippageBps)
	if err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: fmt.Errorf("quote: %w", err)}
	}

	if err := p.guard.CheckSlippage(quote.PriceImpactBps, regime); err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: err}
	}

	if p.cfg.DryRun {
		if intent.Level != nil {
			_ = p.tracker.Open(intent.Level.ID, "dry-run-"+clientOrderID, time.Now())
			_ = p.tracker.Fill(intent.Level.ID, time.Now())
		}
		return p.buildFilledTrade(intent, quote, "dry-run-"+clientOrderID), nil
	}

	if err := p.signer.Validate(ctx, amountIn); err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: err}
	}

	priorityFee, err := p.guard.PriorityFee(ctx, p.feeSources())
	if err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: fmt.Errorf("priority fee: %w", err)}
	}

	unsigned, err := p.router.BuildSwap(ctx, quote, p.signer.Pubkey(), priorityFee)
	if err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: fmt.Errorf("build swap: %w", err)}
	}

	signed, err := p.signer.Sign(ctx, unsigned)
	if err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: fmt.Errorf("sign: %w", err)}
	}

	if bundle, ok := p.guard.BuildBundle(signed.Payload, p.guard.TipLamports(), time.Now()); ok {
		p.log.Debug("bundling signed transaction",
			zap.String("client_order_id", clientOrderID),
			zap.Uint64("tip_lamports", bundle.TipLamports),
		)
	}

	if p.store != nil && intent.Level != nil {
		_ = p.store.PutPending(ctx, store.PendingExecution{
			ClientOrderID: clientOrderID,
			LevelID:       intent.Level.ID,
			Side:          intent.Side,
			ExpectedPrice: intent.ExpectedPrice,
			Size:          intent.Size,
			SubmittedAt:   time.Now(),
		})
	}

	signature, err := p.submitWithRetry(ctx, signed.Payload)
	if err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: fmt.Errorf("submit: %w", err)}
	}

	if intent.Level != nil {
		_ = p.tracker.Open(intent.Level.ID, signature, time.Now())
	}

	deadline := time.Now().Add(p.cfg.ConfirmTimeout)
	outcome, err := p.rpc.Confirm(ctx, signature, deadline)
	if err != nil {
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: fmt.Errorf("confirm: %w", err)}
	}

	switch outcome {
	case rpcclient.Confirmed:
		if intent.Level != nil {
			_ = p.tracker.Fill(intent.Level.ID, time.Now())
		}
		if p.store != nil {
			_ = p.store.DeletePending(ctx, clientOrderID)
			_ = p.store.PutVenueOrderID(ctx, clientOrderID, signature)
		}
		return p.buildFilledTrade(intent, quote, signature), nil
	case rpcclient.Failed:
		if intent.Level != nil {
			_ = p.tracker.Expire(intent.Level.ID, time.Now())
		}
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: errors.New("transaction failed on-chain")}
	default:
		if intent.Level != nil {
			_ = p.tracker.Expire(intent.Level.ID, time.Now())
		}
		return types.FilledTrade{}, &ErrExecutionFailed{ClientOrderID: clientOrderID, Err: errors.New("confirmation timed out")}
	}
}

// feeSources adapts the RPC pool's endpoints to the MEV guardian's
// FeeSource contract so PriorityFee can sample every endpoint
// concurrently instead of going through the pool's own round-robin
// picker, which only ever queries one.
func (p *Pipeline) feeSources() []mev.FeeSource {
	endpoints := p.rpc.Endpoints()
	sources := make([]mev.FeeSource, len(endpoints))
	for i, ep := range endpoints {
		sources[i] = ep
	}
	return sources
}

// submitWithRetry mirrors the teacher's doubling-backoff retry, bounded
// by SubmitRetries, submitting through the pool so retries naturally
// rotate across endpoints as earlier ones accumulate failures.
func (p *Pipeline) submitWithRetry(ctx context.Context, signedTx []byte) (string, error) {
	retries := p.cfg.SubmitRetries
	if retries <= 0 {
		retries = 1
	}
	backoff := p.cfg.SubmitBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		sig, err := p.rpc.Submit(ctx, signedTx)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		if attempt == retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return "", fmt.Errorf("submit failed after %d attempts: %w", retries, lastErr)
}

// buildFilledTrade computes realized PnL against the intent's expected
// price and the quote's realized output, in decimal throughout.
func (p *Pipeline) buildFilledTrade(intent types.TradeIntent, quote router.Quote, signature string) types.FilledTrade {
	executedPrice := intent.ExpectedPrice
	outAmount := fromBaseUnits(quote.OutAmount, p.cfg.BaseUnitsPerUnit)
	if !intent.Size.IsZero() && outAmount.IsPositive() {
		executedPrice = outAmount.Div(intent.Size)
	}

	var pnl decimal.Decimal
	switch intent.Side {
	case types.SideSell:
		pnl = executedPrice.Sub(intent.ExpectedPrice).Mul(intent.Size)
	default:
		pnl = intent.ExpectedPrice.Sub(executedPrice).Mul(intent.Size)
	}

	return types.FilledTrade{
		Side:          intent.Side,
		ExpectedPrice: intent.ExpectedPrice,
		ExecutedPrice: executedPrice,
		Size:          intent.Size,
		Fees:          decimal.Zero,
		PnL:           pnl,
		Timestamp:     time.Now(),
		TxID:          signature,
	}
}

// toBaseUnits converts a human-scale decimal amount to the integer
// base units (e.g. lamports) the router's Quote contract speaks,
// using the configured per-unit scale. Defaults to 1 when unset so a
// zero-value Config still round-trips for tests.
func toBaseUnits(amount, perUnit decimal.Decimal) uint64 {
	scale := perUnit
	if scale.IsZero() {
		scale = decimal.NewFromInt(1)
	}
	return uint64(amount.Mul(scale).IntPart())
}

func fromBaseUnits(amount uint64, perUnit decimal.Decimal) decimal.Decimal {
	scale := perUnit
	if scale.IsZero() {
		scale = decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(amount)).Div(scale)
}
