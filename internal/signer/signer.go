// Package signer defines the Signer interface consumed by the
// execution pipeline, plus LocalSigner, an in-memory ed25519
// implementation. Persistent key storage is out of scope; keystore
// limits are enforced
// inside whatever concrete Signer is wired in, never only at the
// orchestrator, so no code path can bypass them by constructing a
// transaction directly.
package signer

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"gridbot/internal/router"
)

var (
	// ErrExceedsDailyVolume is returned by Validate when a proposed
	// trade would push the day's traded volume past the configured cap.
	ErrExceedsDailyVolume = errors.New("signer: exceeds daily volume limit")
	// ErrExceedsDailyTrades is returned when the day's trade count cap
	// would be exceeded.
	ErrExceedsDailyTrades = errors.New("signer: exceeds daily trade count limit")
	// ErrExceedsPositionSize is returned when a single trade's quote
	// amount exceeds the configured maximum; the signer keeps no
	// running position.
	ErrExceedsPositionSize = errors.New("signer: exceeds max position size")
)

// Limits mirrors the keystore limits named in the data model: the
// signer enforces these itself before every signing operation.
type Limits struct {
	MaxDailyTrades  int
	MaxDailyVolume  decimal.Decimal
	MaxPositionSize decimal.Decimal
}

// SignedTx is an opaque, signed, submittable transaction.
type SignedTx struct {
	Payload []byte
}

// Signer serializes signing operations internally and is the only
// holder of private-key material. Validate and Sign are atomic with
// respect to limit bookkeeping: a successful Sign decrements the
// signer's internal limit counters, and a failed Validate leaves them
// untouched.
type Signer interface {
	Pubkey() string
	Validate(ctx context.Context, amountQuote decimal.Decimal) error
	Sign(ctx context.Context, tx router.UnsignedTx) (SignedTx, error)
}
