package transactions

import (
	"context"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/internal/inventory"
	"github.com/cartaviva/cartaviva-backend/pkg/db"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/payloads"
)

func (s *service) OpenDispute(ctx context.Context, input DisputeInput) (*models.Dispute, error) {
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute description required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute type")
	}
	if !input.Severity.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute severity")
	}

	var out *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if !isParticipant(txn, input.ActorID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a transaction participant")
		}
		if err := s.swap(ctx, repo, txn, enums.TransactionStatusDisputed, map[string]any{
			"disputed_at": s.now().UTC(),
		}); err != nil {
			return err
		}

		dispute := &models.Dispute{
			TransactionID: txn.ID,
			RaisedByID:    input.ActorID,
			Type:          input.Type,
			Severity:      input.Severity,
			Status:        enums.DisputeStatusOpen,
			Description:   input.Description,
			EvidenceURLs:  pq.StringArray(input.EvidenceURLs),
		}
		if _, err := repo.CreateDispute(ctx, dispute); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "transaction already has a dispute")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		out = dispute

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionDisputed,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actorRef(input.ActorID, enums.ActorRoleTrader),
			Data: payloads.TransactionDisputedEvent{
				TransactionID: txn.ID,
				DisputeID:     dispute.ID,
				RaisedByID:    dispute.RaisedByID,
				Type:          dispute.Type,
				Severity:      dispute.Severity,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Dispute, error) {
	if !input.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute outcome")
	}

	var out *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		dispute, err := repo.FindDisputeByTransaction(ctx, txn.ID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
		}
		if dispute.Status == enums.DisputeStatusResolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute already resolved")
		}

		target := enums.TransactionStatusResolvedFavourBuyer
		if input.Outcome == enums.DisputeOutcomeFavourSeller {
			target = enums.TransactionStatusResolvedFavourSeller
		}
		now := s.now().UTC()
		if err := s.swap(ctx, repo, txn, target, map[string]any{
			"completed_at": now,
		}); err != nil {
			return err
		}

		// The buyer gets the stock back, the seller gets the sale.
		switch target {
		case enums.TransactionStatusResolvedFavourBuyer:
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
						Reason:        string(target),
					},
				}); err != nil {
					return err
				}
			}
		case enums.TransactionStatusResolvedFavourSeller:
			if err := s.settleSale(ctx, tx, txn); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"status":         enums.DisputeStatusResolved,
			"outcome":        input.Outcome,
			"resolved_by_id": input.ModeratorID,
			"resolved_at":    now,
		}
		if input.Note != nil {
			updates["resolution_note"] = *input.Note
		}
		if err := repo.UpdateDispute(ctx, dispute.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dispute")
		}
		dispute.Status = enums.DisputeStatusResolved
		dispute.Outcome = &input.Outcome
		dispute.ResolvedByID = &input.ModeratorID
		dispute.ResolutionNote = input.Note
		dispute.ResolvedAt = &now
		out = dispute

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actorRef(input.ModeratorID, enums.ActorRoleModerator),
			Data: payloads.DisputeResolvedEvent{
				TransactionID: txn.ID,
				DisputeID:     dispute.ID,
				ResolvedByID:  input.ModeratorID,
				Outcome:       input.Outcome,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
