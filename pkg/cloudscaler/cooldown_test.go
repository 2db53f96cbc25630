package cloudscaler

import (
	"context"
	"testing"
	"time"

	"github.com/stackguardian/runner-autoscaler/pkg/blobstore"
)

func TestCooldownLedgerGetEventMissingReturnsNotFound(t *testing.T) {
	ledger := newCooldownLedger(blobstore.NewFake(), "scale-out", "scale-in")

	_, found, err := ledger.GetLastScaleOutEvent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for an absent blob")
	}
}

func TestCooldownLedgerRoundTripsScaleOutEvent(t *testing.T) {
	ledger := newCooldownLedger(blobstore.NewFake(), "scale-out", "scale-in")
	ctx := context.Background()

	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)
	if err := ledger.SetLastScaleOutEvent(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := ledger.GetLastScaleOutEvent(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true after Set")
	}
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCooldownLedgerScaleInAndScaleOutAreIndependent(t *testing.T) {
	ledger := newCooldownLedger(blobstore.NewFake(), "scale-out", "scale-in")
	ctx := context.Background()

	scaleOutTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := ledger.SetLastScaleOutEvent(ctx, scaleOutTime); err != nil {
		t.Fatalf("set scale-out: %v", err)
	}

	_, found, err := ledger.GetLastScaleInEvent(ctx)
	if err != nil {
		t.Fatalf("get scale-in: %v", err)
	}
	if found {
		t.Fatalf("scale-in event should still be absent after only setting scale-out")
	}
}

func TestCooldownLedgerRejectsMalformedTimestamp(t *testing.T) {
	store := blobstore.NewFake()
	if err := store.Put(context.Background(), "scale-out", []byte("not-a-timestamp")); err != nil {
		t.Fatalf("put: %v", err)
	}
	ledger := newCooldownLedger(store, "scale-out", "scale-in")

	_, _, err := ledger.GetLastScaleOutEvent(context.Background())
	if err == nil {
		t.Fatalf("expected a parse error for a malformed timestamp blob")
	}
}
