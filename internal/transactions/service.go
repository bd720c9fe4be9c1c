package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/internal/inventory"
	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/payloads"
	"github.com/cartaviva/cartaviva-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the transaction lifecycle.
type Service interface {
	Get(ctx context.Context, transactionID, actorID uuid.UUID, role enums.ActorRole) (*models.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*TransactionList, error)
	Accept(ctx context.Context, input DecisionInput) (*models.Transaction, error)
	Reject(ctx context.Context, input CancelInput) (*models.Transaction, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Transaction, error)
	AdminCancel(ctx context.Context, input CancelInput) (*models.Transaction, error)
	ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Transaction, error)
	ConfirmPayment(ctx context.Context, input PaymentInput) (*models.Transaction, error)
	Complete(ctx context.Context, input ActionInput) (*models.Transaction, error)
	SubmitRating(ctx context.Context, input RatingInput) (*models.Rating, error)
	OpenDispute(ctx context.Context, input DisputeInput) (*models.Dispute, error)
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Dispute, error)
	SweepTimeouts(ctx context.Context, now time.Time, limit int) (SweepResult, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	trade  config.TradeConfig
	now    func() time.Time
}

// NewService builds the lifecycle service with the required dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, trade config.TradeConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: ob,
		trade:  trade,
		now:    time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, transactionID, actorID uuid.UUID, role enums.ActorRole) (*models.Transaction, error) {
	txn, err := s.load(ctx, s.repo, transactionID)
	if err != nil {
		return nil, err
	}
	if role != enums.ActorRoleModerator && !isParticipant(txn, actorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a transaction participant")
	}
	return txn, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*TransactionList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	list, err := s.repo.ListForParticipant(ctx, userID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return list, nil
}

func (s *service) Accept(ctx context.Context, input DecisionInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if txn.SellerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can accept")
		}

		now := s.now().UTC()
		deliveryDeadline := now.Add(s.trade.DeliveryWindow)
		updates := map[string]any{
			"accepted_at":       now,
			"delivery_deadline": deliveryDeadline,
		}
		if input.Notes != nil {
			updates["seller_notes"] = *input.Notes
		}
		if input.OriginStore != nil {
			updates["origin_store"] = *input.OriginStore
		}
		if input.SellerContact != nil {
			snapshot, err := json.Marshal(input.SellerContact)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode seller contact")
			}
			updates["seller_contact"] = string(snapshot)
		}
		if err := s.swap(ctx, repo, txn, enums.TransactionStatusAcceptedPendingDelivery, updates); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusAcceptedPendingDelivery
		txn.AcceptedAt = &now
		txn.DeliveryDeadline = &deliveryDeadline
		txn.OriginStore = input.OriginStore
		txn.SellerContact = input.SellerContact
		out = txn

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionAccepted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.TransactionDecisionEvent{
				TransactionID:    txn.ID,
				BuyerID:          txn.BuyerID,
				SellerID:         txn.SellerID,
				Status:           txn.Status,
				DeliveryDeadline: &deliveryDeadline,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Reject(ctx context.Context, input CancelInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if txn.SellerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can reject")
		}
		if txn.Status != enums.TransactionStatusPendingSellerResponse {
			return invalidTransition(txn.Status, enums.TransactionStatusCancelledBySeller)
		}

		out, err = s.cancelInTx(ctx, tx, repo, txn, enums.TransactionStatusCancelledBySeller, input.Reason, input.ActorID, input.ActorRole, enums.EventTransactionRejected)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if !isParticipant(txn, input.ActorID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a transaction participant")
		}

		target := enums.TransactionStatusCancelledByBuyer
		if input.ActorID == txn.SellerID {
			target = enums.TransactionStatusCancelledBySeller
		}
		if txn.Status != enums.TransactionStatusPendingSellerResponse &&
			txn.Status != enums.TransactionStatusAcceptedPendingDelivery {
			return invalidTransition(txn.Status, target)
		}

		out, err = s.cancelInTx(ctx, tx, repo, txn, target, input.Reason, input.ActorID, input.ActorRole, enums.EventTransactionCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) AdminCancel(ctx context.Context, input CancelInput) (*models.Transaction, error) {
	if input.ActorRole != enums.ActorRoleModerator {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "moderator role required")
	}
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if !CanTransition(txn.Status, enums.TransactionStatusCancelledByAdmin) {
			return invalidTransition(txn.Status, enums.TransactionStatusCancelledByAdmin)
		}

		out, err = s.cancelInTx(ctx, tx, repo, txn, enums.TransactionStatusCancelledByAdmin, input.Reason, input.ActorID, input.ActorRole, enums.EventTransactionCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// cancelInTx applies the CAS, returns held stock and emits the cancellation
// event. The caller has already validated the actor and source state.
func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, repo Repository, txn *models.Transaction, target enums.TransactionStatus, reason string, actorID uuid.UUID, role enums.ActorRole, eventType enums.OutboxEventType) (*models.Transaction, error) {
	now := s.now().UTC()
	updates := map[string]any{
		"cancelled_at":  now,
		"cancel_reason": reason,
	}
	if err := s.swap(ctx, repo, txn, target, updates); err != nil {
		return nil, err
	}

	released, err := inventory.Release(ctx, tx, txn.ID)
	if err != nil {
		return nil, err
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
			return nil, err
		}
	}

	txn.Status = target
	txn.CancelledAt = &now
	txn.CancelReason = &reason

	return txn, s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         actorRef(actorID, role),
		Data: payloads.TransactionCancelledEvent{
			TransactionID: txn.ID,
			BuyerID:       txn.BuyerID,
			SellerID:      txn.SellerID,
			Status:        target,
			Reason:        reason,
			CancelledAt:   now,
		},
	})
}

func (s *service) ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if txn.SellerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can confirm delivery")
		}

		now := s.now().UTC()
		confirmDeadline := now.Add(s.trade.BuyerConfirmWindow)
		updates := map[string]any{
			"delivered_at":     now,
			"confirm_deadline": confirmDeadline,
		}
		if input.Notes != nil {
			updates["seller_notes"] = *input.Notes
		}
		if err := s.swap(ctx, repo, txn, enums.TransactionStatusDeliveredPendingPayment, updates); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusDeliveredPendingPayment
		txn.DeliveredAt = &now
		txn.ConfirmDeadline = &confirmDeadline
		out = txn

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionDelivered,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.TransactionDeliveredEvent{
				TransactionID:   txn.ID,
				BuyerID:         txn.BuyerID,
				SellerID:        txn.SellerID,
				DeliveredAt:     now,
				ConfirmDeadline: confirmDeadline,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input PaymentInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if txn.BuyerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm payment")
		}

		now := s.now().UTC()
		ratingDeadline := now.Add(s.trade.RatingWindow)
		updates := map[string]any{
			"payment_confirmed_at": now,
			"rating_deadline":      ratingDeadline,
		}
		if input.Notes != nil {
			updates["buyer_notes"] = *input.Notes
		}
		if err := s.swap(ctx, repo, txn, enums.TransactionStatusPaymentConfirmed, updates); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusPaymentConfirmed
		txn.PaymentConfirmedAt = &now
		txn.RatingDeadline = &ratingDeadline
		out = txn

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionPaid,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.TransactionPaidEvent{
				TransactionID: txn.ID,
				BuyerID:       txn.BuyerID,
				SellerID:      txn.SellerID,
				PaymentMethod: txn.PaymentMethod,
				TotalCentimos: txn.TotalCentimos,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Complete(ctx context.Context, input ActionInput) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.load(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if input.ActorRole != enums.ActorRoleModerator && !isParticipant(txn, input.ActorID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a transaction participant")
		}
		out, err = s.completeInTx(ctx, tx, repo, txn, actorRef(input.ActorID, input.ActorRole))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// completeInTx moves the row to completed and settles the ledger. Confirming
// the sale a second time is a no-op, so the ratings auto-complete path and an
// explicit complete call cannot double-settle.
func (s *service) completeInTx(ctx context.Context, tx *gorm.DB, repo Repository, txn *models.Transaction, actor *outbox.ActorRef) (*models.Transaction, error) {
	now := s.now().UTC()
	if err := s.swap(ctx, repo, txn, enums.TransactionStatusCompleted, map[string]any{
		"completed_at": now,
	}); err != nil {
		return nil, err
	}

	if err := s.settleSale(ctx, tx, txn); err != nil {
		return nil, err
	}

	txn.Status = enums.TransactionStatusCompleted
	txn.CompletedAt = &now

	return txn, s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionCompleted,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         actor,
		Data: payloads.TransactionCompletedEvent{
			TransactionID: txn.ID,
			BuyerID:       txn.BuyerID,
			SellerID:      txn.SellerID,
			Status:        enums.TransactionStatusCompleted,
			CompletedAt:   now,
		},
	})
}

// settleSale consumes the transaction's holds and emits sold-out events.
func (s *service) settleSale(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	results, err := inventory.ConfirmSale(ctx, tx, txn.ID)
	if err != nil {
		return err
	}
	for _, sale := range results {
		if !sale.SoldOut {
			continue
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingSoldOut,
			AggregateType: enums.AggregateListing,
			AggregateID:   sale.ListingID,
			Data: payloads.ListingSoldOutEvent{
				ListingID: sale.ListingID,
				SellerID:  sale.SellerID,
				TotalSold: sale.TotalSold,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Transaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

// swap validates the move against the transition table and applies the CAS.
// Losing the CAS race surfaces as STATE_CONFLICT, same as an illegal call.
func (s *service) swap(ctx context.Context, repo Repository, txn *models.Transaction, target enums.TransactionStatus, updates map[string]any) error {
	if !CanTransition(txn.Status, target) {
		return invalidTransition(txn.Status, target)
	}
	ok, err := repo.UpdateStatusFrom(ctx, txn.ID, txn.Status, target, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
	}
	if !ok {
		return invalidTransition(txn.Status, target)
	}
	return nil
}

func isParticipant(txn *models.Transaction, actorID uuid.UUID) bool {
	return actorID != uuid.Nil && (txn.BuyerID == actorID || txn.SellerID == actorID)
}

func actorRef(actorID uuid.UUID, role enums.ActorRole) *outbox.ActorRef {
	if actorID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actorID, Role: role.String()}
}
