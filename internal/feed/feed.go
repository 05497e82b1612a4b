// Package feed defines the PriceFeed interface consumed by the bot
// orchestrator. The transport that implements it (HTTP polling,
// websocket subscription, oracle aggregator) is deliberately out of
// scope; this package carries the contract, a minimal HTTP polling
// adapter (HTTPPoller), and a deterministic test double (Fake).
package feed

import (
	"context"

	"gridbot/internal/types"
)

// PriceFeed is a lazy, possibly-infinite sequence of price ticks.
// Implementations may signal transient failure by sending an error on
// the channel Subscribe returns; the orchestrator treats a gap longer than configured
// max silence as a degraded-mode trigger.
type PriceFeed interface {
	// Subscribe begins delivering ticks on the returned channel until
	// ctx is cancelled or Close is called. The channel is closed when
	// the feed stops producing ticks.
	Subscribe(ctx context.Context) (<-chan types.PriceTick, <-chan error)
	Close() error
}
