package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
)

func TestSubmitRatingBeforePayment(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)

	_, err := svc.SubmitRating(context.Background(), RatingInput{
		TransactionID: txn.ID, RaterID: buyerID, Score: 5,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSubmitRatingOncePerRole(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)
	ratingDeadline := time.Now().UTC().Add(336 * time.Hour)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status":          enums.TransactionStatusPaymentConfirmed,
		"rating_deadline": ratingDeadline,
	})

	first, err := svc.SubmitRating(ctx, RatingInput{
		TransactionID: txn.ID, RaterID: buyerID, Score: 5,
	})
	if err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if first.Role != enums.RatingRoleBuyer || first.RateeID != listing.SellerID {
		t.Fatalf("unexpected rating: %+v", first)
	}

	_, err = svc.SubmitRating(ctx, RatingInput{
		TransactionID: txn.ID, RaterID: buyerID, Score: 1,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on duplicate, got %v", err)
	}

	// One rating alone must not close the trade.
	var current models.Transaction
	if err := db.First(&current, "id = ?", txn.ID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if current.Status != enums.TransactionStatusPaymentConfirmed {
		t.Fatalf("unexpected status: %s", current.Status)
	}
}

func TestSubmitRatingScoreBounds(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	for _, score := range []int{0, 6, -1} {
		_, err := svc.SubmitRating(context.Background(), RatingInput{
			TransactionID: uuid.New(), RaterID: uuid.New(), Score: score,
		})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for score %d, got %v", score, err)
		}
	}
}

func TestSubmitRatingNonParticipant(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, uuid.New(), 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status": enums.TransactionStatusPaymentConfirmed,
	})

	_, err := svc.SubmitRating(context.Background(), RatingInput{
		TransactionID: txn.ID, RaterID: uuid.New(), Score: 3,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestLateRatingAfterNoRatingClosure(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	listing := seedListing(t, db, sellerID, 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status":       enums.TransactionStatusCompletedNoRating,
		"completed_at": time.Now().UTC(),
	})

	if _, err := svc.SubmitRating(ctx, RatingInput{
		TransactionID: txn.ID, RaterID: buyerID, Score: 4,
	}); err != nil {
		t.Fatalf("buyer rating: %v", err)
	}
	if _, err := svc.SubmitRating(ctx, RatingInput{
		TransactionID: txn.ID, RaterID: sellerID, Score: 5,
	}); err != nil {
		t.Fatalf("seller rating: %v", err)
	}

	var current models.Transaction
	if err := db.First(&current, "id = ?", txn.ID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if current.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed after late ratings, got %s", current.Status)
	}
}
