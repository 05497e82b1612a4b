package feed

import (
	"context"

	"gridbot/internal/types"
)

// Fake is a deterministic PriceFeed test double that replays a fixed
// sequence of ticks, then closes its channel, for driving the
// orchestrator without any real transport.
type Fake struct {
	Ticks []types.PriceTick

	closed bool
}

func (f *Fake) Subscribe(ctx context.Context) (<-chan types.PriceTick, <-chan error) {
	ticks := make(chan types.PriceTick, len(f.Ticks))
	errs := make(chan error)
	go func() {
		defer close(ticks)
		for _, t := range f.Ticks {
			select {
			case <-ctx.Done():
				return
			case ticks <- t:
			}
		}
	}()
	return ticks, errs
}

func (f *Fake) Close() error {
	f.closed = true
	return nil
}
