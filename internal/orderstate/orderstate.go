// Package orderstate implements the order-lifecycle state machine
// (C9): the single writer of execution-outcome-driven GridLevel
// transitions (Open, Filled, Expired). It complements, rather than
// replaces, the grid rebalancer's own structural bookkeeping: C5
// marks a level Planned when it first lays out a snapshot and
// Cancelled when a reposition retires it, while this package owns
// every transition driven by what actually happened on the venue
// between an order leaving the bot and a confirmation or timeout
// coming back. Grounded on the Rust reference's OrderLifecycle enum
// and the teacher's idempotency-cache pattern in internal/exec.
package orderstate

import (
	"errors"
	"sync"
	"time"

	"gridbot/internal/types"
)

var (
	// ErrAlreadyTerminal is returned when a transition is attempted on
	// a level already in a terminal state.
	ErrAlreadyTerminal = errors.New("orderstate: level already terminal")
	// ErrNotOpen is returned when Fill or Expire is attempted on a
	// level that was never armed and opened.
	ErrNotOpen = errors.New("orderstate: level not open")
	// ErrUnknownLevel is returned for transitions referencing a level
	// ID the tracker never armed.
	ErrUnknownLevel = errors.New("orderstate: unknown level")
)

// Tracker owns the execution-facing half of every GridLevel's
// lifecycle: Planned --Arm--> pending submit --Open--> {Filled,
// Expired, Cancelled}. It indexes levels by ID so C10 can report
// outcomes asynchronously, independent of tick ordering.
type Tracker struct {
	mu     sync.Mutex
	levels map[string]*types.GridLevel
}

func New() *Tracker {
	return &Tracker{levels: make(map[string]*types.GridLevel)}
}

// Arm registers a Planned level as about to be submitted, making it
// visible to Open/Fill/Expire/Cancel by ID. Re-arming a level already
// known (e.g. a retried submit) is a no-op.
func (t *Tracker) Arm(lvl *types.GridLevel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.levels[lvl.ID]; ok {
		return
	}
	t.levels[lvl.ID] = lvl
}

// Open transitions an armed level to Open once C10 has a confirmed
// venue order ID for it.
func (t *Tracker) Open(id string, venueOrderID string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	lvl, ok := t.levels[id]
	if !ok {
		return ErrUnknownLevel
	}
	if lvl.State.Terminal() {
		return ErrAlreadyTerminal
	}
	lvl.State = types.LevelOpen
	lvl.VenueOrderID = venueOrderID
	lvl.LastRefreshAt = now
	return nil
}

// Fill transitions an Open level to Filled. Only Open levels can fill;
// a Planned level filling without ever reporting Open indicates a
// missed confirmation and is rejected rather than silently accepted.
func (t *Tracker) Fill(id string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	lvl, ok := t.levels[id]
	if !ok {
		return ErrUnknownLevel
	}
	if lvl.State.Terminal() {
		return ErrAlreadyTerminal
	}
	if lvl.State != types.LevelOpen {
		return ErrNotOpen
	}
	lvl.State = types.LevelFilled
	lvl.LastRefreshAt = now
	return nil
}

// Expire transitions an Open level to Expired. The orchestrator uses it
// for resting levels past order_max_age or order_refresh_interval, and
// the execution pipeline for a submission that failed on-chain or timed
// out awaiting confirmation. No venue-side cancel is issued here.
func (t *Tracker) Expire(id string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	lvl, ok := t.levels[id]
	if !ok {
		return ErrUnknownLevel
	}
	if lvl.State.Terminal() {
		return ErrAlreadyTerminal
	}
	if lvl.State != types.LevelOpen {
		return ErrNotOpen
	}
	lvl.State = types.LevelExpired
	lvl.LastRefreshAt = now
	return nil
}

// Cancel force-transitions a level to Cancelled regardless of its
// prior non-terminal state. Shutdown uses CancelAll instead, and the
// grid rebalancer marks retired levels Cancelled itself.
func (t *Tracker) Cancel(id string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	lvl, ok := t.levels[id]
	if !ok {
		return ErrUnknownLevel
	}
	if lvl.State.Terminal() {
		return ErrAlreadyTerminal
	}
	lvl.State = types.LevelCancelled
	lvl.LastRefreshAt = now
	return nil
}

// CancelAll force-cancels every tracked level still non-terminal,
// returning the IDs actually cancelled. Used on shutdown drain.
func (t *Tracker) CancelAll(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var cancelled []string
	for id, lvl := range t.levels {
		if lvl.State.Terminal() {
			continue
		}
		lvl.State = types.LevelCancelled
		lvl.LastRefreshAt = now
		cancelled = append(cancelled, id)
	}
	return cancelled
}

// Active returns every tracked level not yet in a terminal state.
func (t *Tracker) Active() []*types.GridLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	var active []*types.GridLevel
	for _, lvl := range t.levels {
		if !lvl.State.Terminal() {
			active = append(active, lvl)
		}
	}
	return active
}

// ActiveCount is a cheap cardinality check used by the bot to cap
// outstanding orders without materializing the slice.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, lvl := range t.levels {
		if !lvl.State.Terminal() {
			n++
		}
	}
	return n
}

// Forget drops a terminal level from the tracker's index once its
// generation has been fully retired, bounding memory across long
// runs. It is a no-op on a non-terminal or unknown level.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lvl, ok := t.levels[id]; ok && lvl.State.Terminal() {
		delete(t.levels, id)
	}
}
