package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/router"
)

// LocalSigner holds an ed25519 keypair entirely in memory and
// enforces Limits itself before every Sign, so no caller can bypass
// them by constructing a transaction directly. Persistent key
// storage (a hardware wallet, an encrypted keystore file) is
// deliberately out of scope per the spec's external-interface
// boundary; this exists only so the CLI has a genuine signer to run
// against.
type LocalSigner struct {
	priv   ed25519.PrivateKey
	pubkey string
	limits Limits

	mu          sync.Mutex
	dayStart    time.Time
	tradesToday int
	volumeToday decimal.Decimal
}

// NewLocalSigner derives a signer from a raw ed25519 seed (32 bytes).
// Generating or loading that seed is the caller's responsibility.
func NewLocalSigner(seed []byte, limits Limits) *LocalSigner {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalSigner{
		priv:   priv,
		pubkey: hex.EncodeToString(pub),
		limits: limits,
	}
}

func (s *LocalSigner) Pubkey() string { return s.pubkey }

// Validate checks the proposed notional against daily trade count,
// daily volume, and position size limits, rolling the day window
// forward when 24h have elapsed since it last reset.
func (s *LocalSigner) Validate(ctx context.Context, amountQuote decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.dayStart.IsZero() {
		s.dayStart = now
	} else if now.Sub(s.dayStart) >= 24*time.Hour {
		s.dayStart = now
		s.tradesToday = 0
		s.volumeToday = decimal.Zero
	}

	if s.limits.MaxDailyTrades > 0 && s.tradesToday >= s.limits.MaxDailyTrades {
		return ErrExceedsDailyTrades
	}
	if !s.limits.MaxDailyVolume.IsZero() && s.volumeToday.Add(amountQuote).GreaterThan(s.limits.MaxDailyVolume) {
		return ErrExceedsDailyVolume
	}
	if !s.limits.MaxPositionSize.IsZero() && amountQuote.GreaterThan(s.limits.MaxPositionSize) {
		return ErrExceedsPositionSize
	}
	return nil
}

// Sign signs the unsigned transaction's payload and advances the
// daily counters, matching Validate's bookkeeping exactly so the two
// never drift apart.
func (s *LocalSigner) Sign(ctx context.Context, tx router.UnsignedTx) (SignedTx, error) {
	signature := ed25519.Sign(s.priv, tx.Payload)

	s.mu.Lock()
	s.tradesToday++
	s.mu.Unlock()

	payload := make([]byte, 0, len(signature)+len(tx.Payload))
	payload = append(payload, signature...)
	payload = append(payload, tx.Payload...)
	return SignedTx{Payload: payload}, nil
}
