// Package mev implements MEV protection (C7): priority-fee
// percentile sampling across the RPC pool's endpoints, a slippage
// guardian that widens its tolerance in high volatility rather than
// rejecting every trade outright, and an optional Jito-style bundle
// wrapper for venues that support it. Grounded on the Rust
// reference's mev_protection module, with the bounded-concurrency fee
// sampling adapted from the errgroup+semaphore pattern used for
// parallel fan-out elsewhere in the example pack (e.g.
// alanyoungcy-polymarketbot's pipeline orchestrator).
package mev

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gridbot/internal/types"
)

// ErrSlippageExceeded is returned by CheckSlippage when the observed
// price impact exceeds the (possibly volatility-relaxed) tolerance.
var ErrSlippageExceeded = errors.New("mev: slippage exceeds tolerance")

// FeeSource is the subset of rpcclient.Pool the guardian needs to
// sample priority fees; satisfied directly by *rpcclient.Pool.
type FeeSource interface {
	RecentPriorityFees(ctx context.Context, slotWindow int) ([]uint64, error)
}

// Config mirrors the MEV tunables named in the configuration surface.
type Config struct {
	Enabled                  bool
	PriorityFeePercentile    float64
	MaxPriorityFeeMicroLamports uint64
	MinPriorityFeeMicroLamports uint64
	BaseSlippageBps          int
	MaxSlippageBps           int
	VolatilitySlippageFactor float64
	SlotWindow               int
	SampleConcurrency        int
	EnableBundling           bool
	TipLamports              uint64
	MaxBundleSize            int
}

// Guardian owns priority-fee sampling and slippage gating for one
// execution pipeline.
type Guardian struct {
	cfg    Config
	source FeeSource
}

func New(cfg Config, source FeeSource) *Guardian {
	if cfg.SampleConcurrency <= 0 {
		cfg.SampleConcurrency = 1
	}
	return &Guardian{cfg: cfg, source: source}
}

// PriorityFee samples recent priority fees from every configured
// endpoint concurrently (bounded by SampleConcurrency), merges the
// samples, and returns the configured percentile clamped to
// [Min,Max]. Sampling multiple endpoints in parallel rather than
// round-robin-serial gives a wider, fresher sample per tick.
func (g *Guardian) PriorityFee(ctx context.Context, endpoints []FeeSource) (uint64, error) {
	if !g.cfg.Enabled || len(endpoints) == 0 {
		return g.cfg.MinPriorityFeeMicroLamports, nil
	}

	sem := semaphore.NewWeighted(int64(g.cfg.SampleConcurrency))
	grp, gctx := errgroup.WithContext(ctx)

	var (
		samples []uint64
	)
	results := make([][]uint64, len(endpoints))
	for i, ep := range endpoints {
		i, ep := i, ep
		grp.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			fees, err := ep.RecentPriorityFees(gctx, g.cfg.SlotWindow)
			if err != nil {
				return nil
			}
			results[i] = fees
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return 0, err
	}
	for _, r := range results {
		samples = append(samples, r...)
	}

	return g.clampFee(g.selectFee(samples)), nil
}

// selectFee picks the configured percentile from the merged sample
// set by nearest lower rank: the element at index floor((n-1)*p/100)
// of the ascending-sorted samples.
func (g *Guardian) selectFee(samples []uint64) uint64 {
	if len(samples) == 0 {
		return g.cfg.MinPriorityFeeMicroLamports
	}
	sorted := append([]uint64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * g.cfg.PriorityFeePercentile / 100.0)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (g *Guardian) clampFee(fee uint64) uint64 {
	if g.cfg.MinPriorityFeeMicroLamports > 0 && fee < g.cfg.MinPriorityFeeMicroLamports {
		return g.cfg.MinPriorityFeeMicroLamports
	}
	if g.cfg.MaxPriorityFeeMicroLamports > 0 && fee > g.cfg.MaxPriorityFeeMicroLamports {
		return g.cfg.MaxPriorityFeeMicroLamports
	}
	return fee
}

// CheckSlippage compares a quote's price-impact against the base
// tolerance, multiplied by VolatilitySlippageFactor in a HighVolatility
// regime so legitimate wide spreads don't get rejected as manipulation,
// and capped at MaxSlippageBps in every regime.
func (g *Guardian) CheckSlippage(priceImpactBps int, regime types.RegimeKind) error {
	tolerance := g.cfg.BaseSlippageBps
	if regime == types.RegimeHighVolatility {
		relaxed := float64(g.cfg.BaseSlippageBps) * g.cfg.VolatilitySlippageFactor
		tolerance = int(relaxed)
	}
	if tolerance > g.cfg.MaxSlippageBps {
		tolerance = g.cfg.MaxSlippageBps
	}
	if priceImpactBps > tolerance {
		return ErrSlippageExceeded
	}
	return nil
}

// Bundle is the minimal shape of a Jito-style bundle: an ordered set
// of signed transactions submitted atomically, all-or-nothing.
type Bundle struct {
	Transactions [][]byte
	TipLamports  uint64
	CreatedAt    time.Time
}

// BuildBundle wraps a single signed transaction into a bundle that
// records tipLamports (no separate tip-transfer transaction is added),
// only when bundling is enabled; otherwise it
// returns a zero Bundle and the caller submits the transaction
// directly through the RPC pool. A negative MaxBundleSize disables
// bundling outright; zero or unset leaves the default single-
// transaction bundle unbounded.
func (g *Guardian) BuildBundle(signedTx []byte, tipLamports uint64, now time.Time) (Bundle, bool) {
	if !g.cfg.EnableBundling {
		return Bundle{}, false
	}
	if g.cfg.MaxBundleSize < 0 {
		return Bundle{}, false
	}
	return Bundle{
		Transactions: [][]byte{signedTx},
		TipLamports:  tipLamports,
		CreatedAt:    now,
	}, true
}

// TipLamports returns the configured bundle tip, for callers that
// don't want to thread the MEV config through their own Config.
func (g *Guardian) TipLamports() uint64 {
	return g.cfg.TipLamports
}
