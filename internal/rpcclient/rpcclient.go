// Package rpcclient defines the RPC interface consumed by the
// execution pipeline, a minimal JSON-RPC implementation of it
// (JSONRPCClient), a websocket HealthProbe, and a round-robin endpoint
// pool with per-endpoint quarantine (spec §5 shared-resource policy).
// Pool only needs an RPC per endpoint to round-robin and quarantine
// across.
package rpcclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConfirmOutcome is the terminal result of polling for confirmation.
type ConfirmOutcome int

const (
	ConfirmUnknown ConfirmOutcome = iota
	Confirmed
	Failed
	ConfirmTimeout
)

// RPC is the execution pipeline's view of a single Solana RPC
// endpoint: submit a signed transaction, poll for confirmation, and
// sample recent priority fees for C7.
type RPC interface {
	Submit(ctx context.Context, signedTx []byte) (string, error)
	Confirm(ctx context.Context, signature string, deadline time.Time) (ConfirmOutcome, error)
	RecentPriorityFees(ctx context.Context, slotWindow int) ([]uint64, error)
}

var ErrNoHealthyEndpoints = errors.New("rpcclient: no healthy endpoints available")

type endpoint struct {
	client RPC
	label  string

	mu                 sync.Mutex
	consecutiveFailures int
	quarantinedUntil    time.Time
}

func (e *endpoint) quarantined(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Before(e.quarantinedUntil)
}

func (e *endpoint) recordFailure(now time.Time, threshold int, cooldown time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures++
	if e.consecutiveFailures >= threshold {
		e.quarantinedUntil = now.Add(cooldown)
	}
}

func (e *endpoint) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures = 0
	e.quarantinedUntil = time.Time{}
}

// Pool round-robins submissions across a set of RPC endpoints,
// quarantining any endpoint that accumulates consecutive failures,
// the way the teacher's websocket client backs off a misbehaving
// connection instead of hammering it.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	next      int

	quarantineThreshold int
	quarantineCooldown  time.Duration
	log                 *zap.Logger
}

func NewPool(clients map[string]RPC, quarantineThreshold int, quarantineCooldown time.Duration, log *zap.Logger) *Pool {
	p := &Pool{
		quarantineThreshold: quarantineThreshold,
		quarantineCooldown:  quarantineCooldown,
		log:                 log,
	}
	for label, client := range clients {
		p.endpoints = append(p.endpoints, &endpoint{client: client, label: label})
	}
	return p
}

// pick returns the next non-quarantined endpoint in round-robin order.
func (p *Pool) pick(now time.Time) *endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.endpoints)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		ep := p.endpoints[idx]
		if !ep.quarantined(now) {
			p.next = (idx + 1) % n
			return ep
		}
	}
	return nil
}

// Submit sends through the next non-quarantined endpoint in
// round-robin order and records the failure or success against it; it
// tries only that one endpoint. The caller layers its own
// exponential-backoff retry loop on top (C10's submit-with-retry).
func (p *Pool) Submit(ctx context.Context, signedTx []byte) (string, error) {
	ep := p.pick(time.Now())
	if ep == nil {
		return "", ErrNoHealthyEndpoints
	}
	sig, err := ep.client.Submit(ctx, signedTx)
	if err != nil {
		ep.recordFailure(time.Now(), p.quarantineThreshold, p.quarantineCooldown)
		if p.log != nil {
			p.log.Warn("rpc submit failed", zap.String("endpoint", ep.label), zap.Error(err))
		}
		return "", err
	}
	ep.recordSuccess()
	return sig, nil
}

func (p *Pool) Confirm(ctx context.Context, signature string, deadline time.Time) (ConfirmOutcome, error) {
	ep := p.pick(time.Now())
	if ep == nil {
		return ConfirmUnknown, ErrNoHealthyEndpoints
	}
	outcome, err := ep.client.Confirm(ctx, signature, deadline)
	if err != nil {
		ep.recordFailure(time.Now(), p.quarantineThreshold, p.quarantineCooldown)
		return ConfirmUnknown, err
	}
	ep.recordSuccess()
	return outcome, nil
}

func (p *Pool) RecentPriorityFees(ctx context.Context, slotWindow int) ([]uint64, error) {
	ep := p.pick(time.Now())
	if ep == nil {
		return nil, ErrNoHealthyEndpoints
	}
	fees, err := ep.client.RecentPriorityFees(ctx, slotWindow)
	if err != nil {
		ep.recordFailure(time.Now(), p.quarantineThreshold, p.quarantineCooldown)
		return nil, err
	}
	ep.recordSuccess()
	return fees, nil
}

// ForceQuarantine immediately quarantines the named endpoint for one
// cooldown period, for use by an out-of-band liveness signal (the
// health probe) that learned of a failure Submit/Confirm never saw.
func (p *Pool) ForceQuarantine(label string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.label == label {
			ep.mu.Lock()
			ep.consecutiveFailures = p.quarantineThreshold
			ep.quarantinedUntil = now.Add(p.quarantineCooldown)
			ep.mu.Unlock()
			return
		}
	}
}

// Endpoints exposes each pooled endpoint's underlying client for
// direct fee sampling. RPC's RecentPriorityFees method already
// satisfies mev.FeeSource, so the MEV guardian can fan out across
// every configured endpoint concurrently instead of going through the
// pool's own round-robin picker, which only ever samples one.
func (p *Pool) Endpoints() []RPC {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RPC, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, ep.client)
	}
	return out
}

// HealthyCount reports how many endpoints are not currently
// quarantined, for metrics/logging.
func (p *Pool) HealthyCount() int {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ep := range p.endpoints {
		if !ep.quarantined(now) {
			n++
		}
	}
	return n
}
