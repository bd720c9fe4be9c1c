package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

func TestSweepTimeoutsSellerDeadline(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	listing := seedListing(t, db, uuid.New(), 2)
	overdue := seedTransaction(t, db, listing, uuid.New(), 1)
	fresh := seedTransaction(t, db, listing, uuid.New(), 1)
	advanceStatus(t, db, overdue.ID, map[string]any{
		"seller_deadline": now.Add(-time.Hour),
	})

	result, err := svc.SweepTimeouts(ctx, now, 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.SellerTimeouts != 1 || result.Total() != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}

	var swept, untouched models.Transaction
	if err := db.First(&swept, "id = ?", overdue.ID).Error; err != nil {
		t.Fatalf("load swept: %v", err)
	}
	if swept.Status != enums.TransactionStatusCancelledTimeoutSeller {
		t.Fatalf("expected timeout cancellation, got %s", swept.Status)
	}
	if err := db.First(&untouched, "id = ?", fresh.ID).Error; err != nil {
		t.Fatalf("load untouched: %v", err)
	}
	if untouched.Status != enums.TransactionStatusPendingSellerResponse {
		t.Fatalf("transaction inside its window was swept: %s", untouched.Status)
	}

	// Only the overdue hold returns to stock.
	var after models.Listing
	if err := db.First(&after, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if after.AvailableQty != 1 || after.ReservedQty != 1 {
		t.Fatalf("unexpected listing counters: %+v", after)
	}

	if got := countOutboxEvents(t, db, enums.EventTransactionTimedOut); got != 1 {
		t.Fatalf("expected one timed out event, got %d", got)
	}
}

func TestSweepTimeoutsDeliveryDeadline(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Now().UTC()

	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, uuid.New(), 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status":            enums.TransactionStatusAcceptedPendingDelivery,
		"accepted_at":       now.Add(-150 * time.Hour),
		"delivery_deadline": now.Add(-6 * time.Hour),
	})

	result, err := svc.SweepTimeouts(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.DeliveryTimeouts != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}

	var swept models.Transaction
	if err := db.First(&swept, "id = ?", txn.ID).Error; err != nil {
		t.Fatalf("load swept: %v", err)
	}
	if swept.Status != enums.TransactionStatusCancelledTimeoutDelivery {
		t.Fatalf("expected delivery timeout, got %s", swept.Status)
	}
	if swept.CancelledAt == nil {
		t.Fatal("expected cancelled timestamp")
	}

	var after models.Listing
	if err := db.First(&after, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if after.AvailableQty != 1 || after.ReservedQty != 0 {
		t.Fatalf("expected stock returned, got %+v", after)
	}
}

func TestSweepTimeoutsRatingWindow(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Now().UTC()

	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, uuid.New(), 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status":               enums.TransactionStatusPaymentConfirmed,
		"payment_confirmed_at": now.Add(-400 * time.Hour),
		"rating_deadline":      now.Add(-64 * time.Hour),
	})

	result, err := svc.SweepTimeouts(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.RatingClosures != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}

	var swept models.Transaction
	if err := db.First(&swept, "id = ?", txn.ID).Error; err != nil {
		t.Fatalf("load swept: %v", err)
	}
	if swept.Status != enums.TransactionStatusCompletedNoRating {
		t.Fatalf("expected completed without rating, got %s", swept.Status)
	}
	if swept.CompletedAt == nil {
		t.Fatal("expected completed timestamp")
	}

	// The lapsed window still counts as a sale.
	var after models.Listing
	if err := db.First(&after, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if after.Quantity != 0 || after.ReservedQty != 0 || after.TotalSold != 1 {
		t.Fatalf("expected sale settled, got %+v", after)
	}
	if after.Status != enums.ListingStatusSoldOut {
		t.Fatalf("expected sold out listing, got %s", after.Status)
	}
}

func TestSweepTimeoutsReplaySafe(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, uuid.New(), 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"seller_deadline": now.Add(-time.Hour),
	})

	if _, err := svc.SweepTimeouts(ctx, now, 100); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	result, err := svc.SweepTimeouts(ctx, now, 100)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("second sweep should be a no-op, got %+v", result)
	}
	if got := countOutboxEvents(t, db, enums.EventTransactionTimedOut); got != 1 {
		t.Fatalf("expected a single timed out event, got %d", got)
	}
}
