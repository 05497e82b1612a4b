package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestVenueOrderIDRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetVenueOrderID(ctx, "cloid-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.PutVenueOrderID(ctx, "cloid-1", "venue-1"); err != nil {
		t.Fatalf("PutVenueOrderID: %v", err)
	}
	got, err := s.GetVenueOrderID(ctx, "cloid-1")
	if err != nil {
		t.Fatalf("GetVenueOrderID: %v", err)
	}
	if got != "venue-1" {
		t.Fatalf("expected venue-1, got %s", got)
	}
}

func TestVenueOrderIDUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.PutVenueOrderID(ctx, "cloid-1", "venue-1")
	_ = s.PutVenueOrderID(ctx, "cloid-1", "venue-2")

	got, err := s.GetVenueOrderID(ctx, "cloid-1")
	if err != nil {
		t.Fatalf("GetVenueOrderID: %v", err)
	}
	if got != "venue-2" {
		t.Fatalf("expected overwritten venue-2, got %s", got)
	}
}

func TestPendingExecutionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := PendingExecution{
		ClientOrderID: "cloid-1",
		LevelID:       "lvl-1-1",
		Side:          types.SideBuy,
		ExpectedPrice: decimal.NewFromFloat(10.5),
		Size:          decimal.NewFromFloat(1.25),
		Signature:     "sig-1",
		SubmittedAt:   time.Unix(100, 0),
	}
	if err := s.PutPending(ctx, p); err != nil {
		t.Fatalf("PutPending: %v", err)
	}

	listed, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 pending execution, got %d", len(listed))
	}
	if !listed[0].ExpectedPrice.Equal(p.ExpectedPrice) {
		t.Fatalf("expected price round-trip %s, got %s", p.ExpectedPrice, listed[0].ExpectedPrice)
	}

	if err := s.DeletePending(ctx, "cloid-1"); err != nil {
		t.Fatalf("DeletePending: %v", err)
	}
	listed, err = s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending after delete: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no pending executions after delete, got %d", len(listed))
	}
}
