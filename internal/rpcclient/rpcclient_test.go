package rpcclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

type fakeRPC struct {
	submitErr error
}

func (f fakeRPC) Submit(ctx context.Context, signedTx []byte) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "sig", nil
}

func (f fakeRPC) Confirm(ctx context.Context, signature string, deadline time.Time) (ConfirmOutcome, error) {
	return Confirmed, nil
}

func (f fakeRPC) RecentPriorityFees(ctx context.Context, slotWindow int) ([]uint64, error) {
	return []uint64{42}, nil
}

func TestPoolQuarantinesAfterThreshold(t *testing.T) {
	pool := NewPool(map[string]RPC{"only": fakeRPC{submitErr: errBoom}}, 2, time.Minute, zap.NewNop())

	if _, err := pool.Submit(context.Background(), nil); err == nil {
		t.Fatalf("expected submit error")
	}
	if pool.HealthyCount() != 1 {
		t.Fatalf("expected endpoint healthy before threshold, got %d healthy", pool.HealthyCount())
	}

	if _, err := pool.Submit(context.Background(), nil); err == nil {
		t.Fatalf("expected submit error")
	}
	if pool.HealthyCount() != 0 {
		t.Fatalf("expected endpoint quarantined after threshold, got %d healthy", pool.HealthyCount())
	}
}

func TestPoolSubmitReturnsNoHealthyEndpoints(t *testing.T) {
	pool := NewPool(map[string]RPC{}, 1, time.Minute, zap.NewNop())
	if _, err := pool.Submit(context.Background(), nil); err != ErrNoHealthyEndpoints {
		t.Fatalf("expected ErrNoHealthyEndpoints, got %v", err)
	}
}

func TestForceQuarantineTakesEndpointOffline(t *testing.T) {
	pool := NewPool(map[string]RPC{"only": fakeRPC{}}, 3, time.Minute, zap.NewNop())
	if pool.HealthyCount() != 1 {
		t.Fatalf("expected endpoint healthy initially")
	}
	pool.ForceQuarantine("only", time.Now())
	if pool.HealthyCount() != 0 {
		t.Fatalf("expected endpoint quarantined after ForceQuarantine")
	}
}

func TestEndpointsExposesUnderlyingClients(t *testing.T) {
	pool := NewPool(map[string]RPC{"a": fakeRPC{}, "b": fakeRPC{}}, 3, time.Minute, zap.NewNop())
	endpoints := pool.Endpoints()
	if len(endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(endpoints))
	}
	fees, err := endpoints[0].RecentPriorityFees(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPriorityFees: %v", err)
	}
	if len(fees) != 1 || fees[0] != 42 {
		t.Fatalf("unexpected fees: %v", fees)
	}
}
