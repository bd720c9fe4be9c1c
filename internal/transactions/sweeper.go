package transactions

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/internal/inventory"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/payloads"
)

// SweepResult counts the rows each deadline pass transitioned.
type SweepResult struct {
	SellerTimeouts   int
	DeliveryTimeouts int
	RatingClosures   int
}

// Total returns the number of transitions applied across all passes.
func (r SweepResult) Total() int {
	return r.SellerTimeouts + r.DeliveryTimeouts + r.RatingClosures
}

type sweepPass struct {
	from     enums.TransactionStatus
	to       enums.TransactionStatus
	column   string
	deadline func(*models.Transaction) *time.Time
}

var sweepPasses = []sweepPass{
	{
		from:   enums.TransactionStatusPendingSellerResponse,
		to:     enums.TransactionStatusCancelledTimeoutSeller,
		column: "seller_deadline",
		deadline: func(t *models.Transaction) *time.Time {
			return &t.SellerDeadline
		},
	},
	{
		from:   enums.TransactionStatusAcceptedPendingDelivery,
		to:     enums.TransactionStatusCancelledTimeoutDelivery,
		column: "delivery_deadline",
		deadline: func(t *models.Transaction) *time.Time {
			return t.DeliveryDeadline
		},
	},
	{
		from:   enums.TransactionStatusPaymentConfirmed,
		to:     enums.TransactionStatusCompletedNoRating,
		column: "rating_deadline",
		deadline: func(t *models.Transaction) *time.Time {
			return t.RatingDeadline
		},
	},
}

// SweepTimeouts expires overdue transactions in three passes: unanswered
// offers, undelivered trades, and paid trades whose rating window lapsed.
// Each candidate gets its own transaction so one poisoned row cannot stall
// the batch, and the CAS means a sweep racing a user action loses cleanly.
func (s *service) SweepTimeouts(ctx context.Context, now time.Time, limit int) (SweepResult, error) {
	var result SweepResult
	var errs error

	for _, pass := range sweepPasses {
		candidates, err := s.repo.FindTimedOut(ctx, pass.from, pass.column, now, limit)
		if err != nil {
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find timed out transactions"))
			continue
		}
		for i := range candidates {
			moved, err := s.sweepOne(ctx, &candidates[i], pass)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if !moved {
				continue
			}
			switch pass.to {
			case enums.TransactionStatusCancelledTimeoutSeller:
				result.SellerTimeouts++
			case enums.TransactionStatusCancelledTimeoutDelivery:
				result.DeliveryTimeouts++
			case enums.TransactionStatusCompletedNoRating:
				result.RatingClosures++
			}
		}
	}
	return result, errs
}

func (s *service) sweepOne(ctx context.Context, txn *models.Transaction, pass sweepPass) (bool, error) {
	moved := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		updates := map[string]any{}
		if pass.to == enums.TransactionStatusCompletedNoRating {
			updates["completed_at"] = now
		} else {
			updates["cancelled_at"] = now
			updates["cancel_reason"] = "deadline expired"
		}

		ok, err := repo.UpdateStatusFrom(ctx, txn.ID, pass.from, pass.to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep transaction")
		}
		if !ok {
			// A user action won the race since the candidate query ran.
			return nil
		}
		moved = true

		if pass.to == enums.TransactionStatusCompletedNoRating {
			if err := s.settleSale(ctx, tx, txn); err != nil {
				return err
			}
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventTransactionCompleted,
				AggregateType: enums.AggregateTransaction,
				AggregateID:   txn.ID,
				Data: payloads.TransactionCompletedEvent{
					TransactionID: txn.ID,
					BuyerID:       txn.BuyerID,
					SellerID:      txn.SellerID,
					Status:        enums.TransactionStatusCompletedNoRating,
					CompletedAt:   now,
				},
			})
		}

		released, err := inventory.Release(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		for _, stock := range released {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationReleased,
				AggregateType: enums.AggregateListing,
				AggregateID:   stock.ListingID,
				Data: payloads.ReservationReleasedEvent{
					ListingID:     stock.ListingID,
					TransactionID: txn.ID,
					Qty:           stock.Qty,
					Reason:        string(pass.to),
				},
			}); err != nil {
				return err
			}
		}

		deadline := now
		if at := pass.deadline(txn); at != nil {
			deadline = *at
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionTimedOut,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data: payloads.TransactionTimedOutEvent{
				TransactionID: txn.ID,
				BuyerID:       txn.BuyerID,
				SellerID:      txn.SellerID,
				Status:        pass.to,
				Deadline:      deadline,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}
