// Package bot implements the orchestrator (C11): the tick loop that
// wires every other component together, turning each price tick into
// at most one trade intent per cycle under the cooperative
// single-mutator concurrency model (no sub-strategy evaluation runs
// in parallel within one tick; I/O calls are the only suspension
// points). Grounded on the teacher's internal/app.App — same
// ticker-driven Run(ctx), same tick()-dispatches-to-named-steps shape
// — generalized from a funding-carry loop to the grid engine's
// indicator -> regime -> reposition -> consensus -> filter -> risk ->
// execute pipeline.
package bot

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gridbot/internal/consensus"
	"gridbot/internal/execution"
	"gridbot/internal/feed"
	"gridbot/internal/feefilter"
	"gridbot/internal/grid"
	"gridbot/internal/indicator"
	"gridbot/internal/journal"
	"gridbot/internal/metrics"
	"gridbot/internal/optimizer"
	"gridbot/internal/orderstate"
	"gridbot/internal/regime"
	"gridbot/internal/risk"
	"gridbot/internal/types"
)

// Config carries orchestrator-level tunables not already owned by one
// of its collaborators' own Config.
type Config struct {
	MaxFeedSilence             time.Duration
	OptimizationIntervalCycles int
	PerformanceWindowSize      int
}

// Bot composes every component into one tick loop. Every field here
// is exclusively mutated from the goroutine running Run, except
// Risk/Tracker, which are safe for concurrent read from outside (e.g.
// metrics export) by their own internal locking.
type Bot struct {
	cfg Config

	feed       feed.PriceFeed
	indicators *indicator.Engine
	classifier *regime.Classifier
	optimizer  *optimizer.Optimizer
	filter     *feefilter.Filter
	grid       *grid.Rebalancer
	consensus  *consensus.Engine
	riskCtl    *risk.Controller
	tracker    *orderstate.Tracker
	exec       *execution.Pipeline
	journal    *journal.Writer
	metrics    *metrics.Metrics
	log        *zap.Logger

	cycle        uint64
	lastTickAt   time.Time
	window       []types.FilledTrade
	requireTrend bool
}

// New assembles the orchestrator from its already-constructed
// collaborators; wiring which concrete feed/router/signer/RPC
// implementations back those collaborators is the application
// layer's job, not this package's.
func New(
	cfg Config,
	f feed.PriceFeed,
	ind *indicator.Engine,
	classifier *regime.Classifier,
	opt *optimizer.Optimizer,
	filter *feefilter.Filter,
	reb *grid.Rebalancer,
	cons *consensus.Engine,
	riskCtl *risk.Controller,
	tracker *orderstate.Tracker,
	exec *execution.Pipeline,
	j *journal.Writer,
	m *metrics.Metrics,
	log *zap.Logger,
) *Bot {
	if m == nil {
		m = metrics.NewNoop()
	}
	if cfg.PerformanceWindowSize <= 0 {
		cfg.PerformanceWindowSize = 50
	}
	return &Bot{
		cfg:        cfg,
		feed:       f,
		indicators: ind,
		classifier: classifier,
		optimizer:  opt,
		filter:     filter,
		grid:       reb,
		consensus:  cons,
		riskCtl:    riskCtl,
		tracker:    tracker,
		exec:       exec,
		journal:    j,
		metrics:    m,
		log:        log,
	}
}

// Run subscribes to the price feed and drives the tick loop until ctx
// is cancelled or the feed closes. A silence gap longer than
// MaxFeedSilence degrades the bot to Hold-only until a fresh tick
// arrives, rather than trading on stale state.
func (b *Bot) Run(ctx context.Context) error {
	ticks, errs := b.feed.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return b.Shutdown(context.Background())
		case err, ok := <-errs:
			if !ok {
				continue
			}
			if b.log != nil {
				b.log.Warn("feed error", zap.Error(err))
			}
		case tick, ok := <-ticks:
			if !ok {
				return b.Shutdown(context.Background())
			}
			b.onTick(ctx, tick)
		}
	}
}

// onTick runs exactly one pass of the engine pipeline for one price
// observation. Every error path logs and returns rather than
// panicking; a single bad tick degrades that cycle to Hold, never the
// whole process.
func (b *Bot) onTick(ctx context.Context, tick types.PriceTick) {
	now := tick.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	if !b.lastTickAt.IsZero() && !now.After(b.lastTickAt) {
		if b.log != nil {
			b.log.Debug("dropping non-monotonic tick",
				zap.Time("tick_at", now),
				zap.Time("last_tick_at", b.lastTickAt),
			)
		}
		return
	}
	b.cycle++

	if !b.lastTickAt.IsZero() && b.cfg.MaxFeedSilence > 0 && now.Sub(b.lastTickAt) > b.cfg.MaxFeedSilence {
		if b.log != nil {
			b.log.Warn("feed silence exceeded max, resuming in degraded mode", zap.Duration("gap", now.Sub(b.lastTickAt)))
		}
	}
	b.lastTickAt = now

	price, _ := tick.Price.Float64()
	snap, err := b.indicators.Update(price)
	if err != nil {
		return // still warming up; Hold implicitly
	}

	riskState := b.riskCtl.Snapshot()
	regimeKind := b.classifier.Classify(snap, riskState.CurrentDrawdownPct)
	b.metrics.Drawdown.Set(riskState.CurrentDrawdownPct)

	b.reconcileGrid(tick.Price, regimeKind, snap, now)
	b.expireStale(ctx, now)

	decision := b.resolveConsensus(tick.Price, snap)
	if decision.Direction == types.DirectionHold {
		b.maybeOptimize()
		return
	}

	intent, ok := b.buildIntent(decision, tick.Price)
	if !ok {
		b.maybeOptimize()
		return
	}

	if b.grid.RegimeBlocksNewOrders(regimeKind, snap.ATRPercentile*100) {
		b.maybeOptimize()
		return
	}

	fd := b.filter.Evaluate(priceFloat(tick.Price), priceFloat(intent.ExpectedPrice), sizeFloat(intent.Size), regimeKind)
	if !fd.Accept {
		b.metrics.FeeFilterBlocked.Inc()
		b.maybeOptimize()
		return
	}

	if err := b.riskCtl.CheckIntent(intent, now); err != nil {
		b.metrics.RiskHalts.Inc()
		if b.log != nil {
			b.log.Warn("intent rejected by risk controller", zap.Error(err))
		}
		b.maybeOptimize()
		return
	}

	b.executeIntent(ctx, intent, regimeKind)
	b.maybeOptimize()
}

// reconcileGrid repositions the grid when price has drifted past the
// reposition band, using the optimizer's current spacing/size.
func (b *Bot) reconcileGrid(price decimal.Decimal, regimeKind types.RegimeKind, snap indicator.Snapshot, now time.Time) {
	if !b.grid.NeedsReposition(price) {
		return
	}
	spacing := b.optimizer.CurrentSpacingPercent()
	size := decimal.NewFromFloat(b.optimizer.CurrentPositionSize())
	fresh := b.grid.Reposition(price, spacing, size, now)
	b.metrics.GridRebalances.Inc()
	if b.journal != nil {
		b.journal.EnqueueSnapshot(journal.GridSnapshotRecord{
			Time:           now,
			Generation:     fresh.Generation,
			AnchorPrice:    priceFloat(fresh.AnchorPrice),
			SpacingPercent: fresh.SpacingPercent,
			LevelCount:     len(fresh.Levels),
		})
	}
	for _, lvl := range fresh.Levels {
		b.tracker.Arm(lvl)
	}
}

// expireStale moves resting levels that have aged past order_max_age
// or gone unrefreshed past order_refresh_interval to Expired, counting
// each one in OrdersCancelled.
func (b *Bot) expireStale(ctx context.Context, now time.Time) {
	for _, lvl := range b.grid.StaleLevels(now) {
		if err := b.tracker.Expire(lvl.ID, now); err == nil {
			b.metrics.OrdersCancelled.Inc()
		}
	}
}

// resolveConsensus gathers one signal from each sub-strategy and
// resolves them. When the engine resolves to Hold but the grid
// sub-strategy alone has a signal, the grid-only fallback takes over
// so a clean level crossing is never silently dropped by the other
// two strategies disagreeing.
func (b *Bot) resolveConsensus(price decimal.Decimal, snap indicator.Snapshot) types.ConsensusDecision {
	crossed, distPct := b.detectCrossing(price)
	gridSig := consensus.GridSignal(priceFloat(price), crossed, distPct)
	rsiSig := consensus.RSISignal(snap, b.requireTrend)
	momSig := consensus.MomentumSignal(snap)

	decision := b.consensus.Resolve([]types.StrategySignal{gridSig, rsiSig, momSig})
	if decision.Direction == types.DirectionHold && gridSig.Direction != types.DirectionHold {
		return types.ConsensusDecision{
			Direction:           gridSig.Direction,
			AggregateConfidence: gridSig.Confidence,
			Contributing:        []types.StrategySignal{gridSig},
			GridOnly:            true,
		}
	}
	return decision
}

// detectCrossing returns the nearest Planned or Open level price has crossed
// (a buy level at or above price, or a sell level at or below price)
// along with the crossing distance as a fraction of that level's
// price, or (nil, 0) if nothing has been crossed this cycle.
func (b *Bot) detectCrossing(price decimal.Decimal) (*types.GridLevel, float64) {
	snapshot := b.grid.Current()
	if snapshot == nil {
		return nil, 0
	}
	var best *types.GridLevel
	bestDist := decimal.Zero
	for _, lvl := range snapshot.Levels {
		if lvl.State != types.LevelPlanned && lvl.State != types.LevelOpen {
			continue
		}
		crossed := false
		switch lvl.Side {
		case types.SideBuy:
			crossed = price.LessThanOrEqual(lvl.Price)
		case types.SideSell:
			crossed = price.GreaterThanOrEqual(lvl.Price)
		}
		if !crossed {
			continue
		}
		dist := price.Sub(lvl.Price).Abs()
		if best == nil || dist.LessThan(bestDist) {
			best = lvl
			bestDist = dist
		}
	}
	if best == nil {
		return nil, 0
	}
	distPct := 0.0
	if best.Price.IsPositive() {
		distPct, _ = bestDist.Div(best.Price).Float64()
	}
	return best, distPct
}

// buildIntent translates a resolved decision into a concrete trade
// intent sized from the optimizer's current output, anchored to the
// crossed level when the decision carries one.
func (b *Bot) buildIntent(decision types.ConsensusDecision, price decimal.Decimal) (types.TradeIntent, bool) {
	var level *types.GridLevel
	for _, sig := range decision.Contributing {
		if sig.Level != nil {
			level = sig.Level
			break
		}
	}

	side := types.SideBuy
	if decision.Direction == types.DirectionSell {
		side = types.SideSell
	}

	expectedPrice := price
	if level != nil {
		expectedPrice = level.Price
	}
	size := decimal.NewFromFloat(b.optimizer.CurrentPositionSize())
	if level != nil {
		size = level.Size
	}

	return types.TradeIntent{
		Level:         level,
		Side:          side,
		ExpectedPrice: expectedPrice,
		Size:          size,
	}, true
}

// executeIntent runs the intent through the execution pipeline and
// folds the outcome back into risk, the fee filter's grace counter,
// the journal, and the rolling performance window.
func (b *Bot) executeIntent(ctx context.Context, intent types.TradeIntent, regimeKind types.RegimeKind) {
	b.metrics.OrdersPlaced.Inc()
	trade, err := b.exec.Execute(ctx, intent, regimeKind)
	if err != nil {
		b.metrics.OrdersFailed.Inc()
		if b.log != nil {
			b.log.Warn("execution failed", zap.Error(err))
		}
		return
	}

	b.metrics.OrdersFilled.Inc()
	b.riskCtl.RecordFill(trade)
	b.filter.RecordTrade()
	if b.journal != nil {
		b.journal.EnqueueTrade(trade)
	}
	b.metrics.RealizedPnL.Set(priceFloat(b.riskCtl.Snapshot().CumulativePnL))
	b.metrics.OpenOrders.Set(float64(b.tracker.ActiveCount()))

	b.window = append(b.window, trade)
	if len(b.window) > b.cfg.PerformanceWindowSize {
		b.window = b.window[1:]
	}
}

// maybeOptimize runs one optimizer pass every
// optimization_interval_cycles, folding the rolling performance
// window and current drawdown into a fresh spacing/size.
func (b *Bot) maybeOptimize() {
	if b.cfg.OptimizationIntervalCycles <= 0 || b.cycle%uint64(b.cfg.OptimizationIntervalCycles) != 0 {
		return
	}
	window := optimizer.PerformanceWindow{
		MaxDrawdownPct: b.riskCtl.Snapshot().CurrentDrawdownPct,
		GridEfficiency: b.grid.Efficiency(),
	}
	for _, trade := range b.window {
		if trade.PnL.IsPositive() {
			window.ProfitableTrades++
		} else if trade.PnL.IsNegative() {
			window.UnprofitableTrades++
		}
	}
	b.optimizer.Optimize(window)
}

// Shutdown force-cancels every outstanding level, closes the feed and
// the journal, combining every close error with multierr so a partial
// failure never masks the others. Journal records still queued and not
// yet written are not flushed before the journal is closed.
func (b *Bot) Shutdown(ctx context.Context) error {
	var errs error
	now := time.Now()
	for _, id := range b.tracker.CancelAll(now) {
		b.metrics.OrdersCancelled.Inc()
		_ = id
	}
	if b.feed != nil {
		if err := b.feed.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if b.journal != nil {
		if err := b.journal.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func priceFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func sizeFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
