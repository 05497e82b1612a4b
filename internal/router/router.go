// Package router defines the SwapRouter interface consumed by the
// execution pipeline, plus JupiterClient, a minimal HTTP adapter for
// the Jupiter aggregator's quote and swap endpoints.
package router

import "context"

// Quote is the result of asking a SwapRouter for pricing on a swap.
type Quote struct {
	InputMint   string
	OutputMint  string
	AmountIn    uint64
	OutAmount   uint64
	PriceImpactBps int
	Route       string
	Raw         any
}

// UnsignedTx is an opaque, not-yet-signed transaction payload returned
// by BuildSwap, ready to hand to a Signer.
type UnsignedTx struct {
	Payload               []byte
	RecentBlockhashHint    string
	LastValidBlockHeight  uint64
}

// SwapRouter is the DEX aggregator contract the execution pipeline
// drives: quote, then build an unsigned transaction for a given user
// public key, carrying the priority fee (in micro-lamports per compute
// unit) C7 sampled for this submission so the built transaction's
// compute-budget instruction reflects it.
type SwapRouter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (Quote, error)
	BuildSwap(ctx context.Context, quote Quote, userPubkey string, priorityFeeMicroLamports uint64) (UnsignedTx, error)
}
