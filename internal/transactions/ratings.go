package transactions

import (
	"context"

	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/pkg/db"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/payloads"
)

// ratableStatuses are the states in which a participant may still rate.
var ratableStatuses = map[enums.TransactionStatus]bool{
	enums.TransactionStatusPaymentConfirmed:  true,
	enums.TransactionStatusCompleted:         true,
	enums.TransactionStatusCompletedNoRating: true,
}

func (s *service) SubmitRating(ctx context.Context, input RatingInput) (*models.Rating, error) {
	if input.Score < 1 || input.Score > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "score must be between 1 and 5").
			WithDetails(map[string]any{"score": input.Score})
	}

	var out *models.Rating
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if !isParticipant(txn, input.RaterID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a transaction participant")
		}
		if !ratableStatuses[txn.Status] {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not ratable yet").
				WithDetails(map[string]any{"status": txn.Status})
		}

		role := enums.RatingRoleBuyer
		rateeID := txn.SellerID
		if input.RaterID == txn.SellerID {
			role = enums.RatingRoleSeller
			rateeID = txn.BuyerID
		}

		rating := &models.Rating{
			TransactionID: txn.ID,
			RaterID:       input.RaterID,
			RateeID:       rateeID,
			Role:          role,
			Score:         input.Score,
			Comment:       input.Comment,
		}
		if _, err := repo.CreateRating(ctx, rating); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "rating already submitted for this transaction")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rating")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRatingSubmitted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actorRef(input.RaterID, enums.ActorRoleTrader),
			Data: payloads.RatingSubmittedEvent{
				TransactionID: txn.ID,
				RatingID:      rating.ID,
				RaterID:       rating.RaterID,
				RateeID:       rating.RateeID,
				Role:          rating.Role,
				Score:         rating.Score,
			},
		}); err != nil {
			return err
		}
		out = rating

		if txn.Status != enums.TransactionStatusPaymentConfirmed &&
			txn.Status != enums.TransactionStatusCompletedNoRating {
			return nil
		}
		ratings, err := repo.FindRatings(ctx, txn.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ratings")
		}
		if len(ratings) < 2 {
			return nil
		}
		// Both sides have rated, the trade closes itself.
		_, err = s.completeInTx(ctx, tx, repo, txn, actorRef(input.RaterID, enums.ActorRoleTrader))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
