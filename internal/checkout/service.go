package checkout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/internal/checkout/helpers"
	"github.com/cartaviva/cartaviva-backend/internal/inventory"
	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/payloads"
	"github.com/cartaviva/cartaviva-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Input is a buyer's cart submitted for checkout. DestinationStore is the
// exchange point the buyer proposes for the pickup.
type Input struct {
	BuyerID          uuid.UUID
	PaymentMethod    enums.PaymentMethod
	BuyerContact     *types.Contact
	BuyerNotes       *string
	DestinationStore *string
	Lines            []helpers.Line
}

// GroupResult reports the outcome for one seller group. Groups succeed and
// fail independently, so a stock race with one seller never voids the rest
// of the cart.
type GroupResult struct {
	SellerID      uuid.UUID
	Transaction   *models.Transaction
	FailureCode   pkgerrors.Code
	FailureReason string
}

// Succeeded reports whether the group produced a transaction.
func (g GroupResult) Succeeded() bool {
	return g.Transaction != nil
}

// Result is the per-seller checkout report.
type Result struct {
	Groups []GroupResult
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	tx       txRunner
	listings ListingRepository
	txnRepo  transactions.Repository
	outbox   outboxPublisher
	trade    config.TradeConfig
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	listings ListingRepository,
	txnRepo transactions.Repository,
	publisher outboxPublisher,
	trade config.TradeConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if listings == nil {
		return nil, fmt.Errorf("listing repository required")
	}
	if txnRepo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:       tx,
		listings: listings,
		txnRepo:  txnRepo,
		outbox:   publisher,
		trade:    trade,
		now:      time.Now,
	}, nil
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	for _, line := range input.Lines {
		if line.ListingID == uuid.Nil || line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each line needs a listing and a positive quantity")
		}
	}

	lines := helpers.MergeDuplicateLines(input.Lines)
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ListingID
	}

	listings, err := s.listings.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
	}
	byID := make(map[uuid.UUID]models.Listing, len(listings))
	for _, listing := range listings {
		byID[listing.ID] = listing
	}

	priced := make([]helpers.PricedLine, 0, len(lines))
	for _, line := range lines {
		listing, ok := byID[line.ListingID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found").
				WithDetails(map[string]any{"listing_id": line.ListingID})
		}
		priced = append(priced, helpers.PricedLine{Listing: listing, Qty: line.Qty})
	}

	grouped := helpers.GroupBySeller(priced)
	sellerIDs := make([]uuid.UUID, 0, len(grouped))
	for sellerID := range grouped {
		sellerIDs = append(sellerIDs, sellerID)
	}
	sort.Slice(sellerIDs, func(i, j int) bool {
		return sellerIDs[i].String() < sellerIDs[j].String()
	})

	result := &Result{Groups: make([]GroupResult, 0, len(sellerIDs))}
	for _, sellerID := range sellerIDs {
		group := GroupResult{SellerID: sellerID}
		txn, err := s.checkoutGroup(ctx, input, sellerID, grouped[sellerID])
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil {
				group.FailureCode = typed.Code()
				group.FailureReason = typed.Error()
			} else {
				group.FailureCode = pkgerrors.CodeInternal
				group.FailureReason = err.Error()
			}
		} else {
			group.Transaction = txn
		}
		result.Groups = append(result.Groups, group)
	}
	return result, nil
}

// checkoutGroup reserves and creates one seller's transaction atomically.
// Any failure rolls the whole group back, holds included.
func (s *service) checkoutGroup(ctx context.Context, input Input, sellerID uuid.UUID, lines []helpers.PricedLine) (*models.Transaction, error) {
	if sellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own listing")
	}

	var created *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.txnRepo.WithTx(tx)

		totals, err := helpers.ComputeGroupTotals(lines, s.trade.ShippingFlatCentimos, s.trade.TaxRatePercent)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		sellerDeadline := now.Add(s.trade.SellerResponseWindow)
		items := make([]models.TransactionItem, len(lines))
		for i, line := range lines {
			items[i] = models.TransactionItem{
				ListingID:         line.Listing.ID,
				CardName:          line.Listing.CardName,
				SetCode:           line.Listing.SetCode,
				Condition:         line.Listing.Condition,
				Language:          line.Listing.Language,
				Foil:              line.Listing.Foil,
				Qty:               line.Qty,
				UnitPriceCentimos: line.Listing.PriceCentimos,
				LineTotalCentimos: line.Listing.PriceCentimos * int64(line.Qty),
			}
		}

		txn := &models.Transaction{
			BuyerID:          input.BuyerID,
			SellerID:         sellerID,
			Status:           enums.TransactionStatusPendingSellerResponse,
			PaymentMethod:    input.PaymentMethod,
			BuyerContact:     input.BuyerContact,
			BuyerNotes:       input.BuyerNotes,
			DestinationStore: input.DestinationStore,
			SubtotalCentimos: totals.SubtotalCentimos,
			ShippingCentimos: totals.ShippingCentimos,
			TaxCentimos:      totals.TaxCentimos,
			TotalCentimos:    totals.TotalCentimos,
			SellerDeadline:   sellerDeadline,
			Items:            items,
		}
		if txn, err = repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}

		holdExpiry := now.Add(s.trade.ReservationTTL)
		for _, line := range lines {
			if err := inventory.Reserve(ctx, tx, inventory.ReservationRequest{
				ListingID:     line.Listing.ID,
				TransactionID: txn.ID,
				Qty:           line.Qty,
				ExpiresAt:     holdExpiry,
			}); err != nil {
				return err
			}
		}

		created = txn
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionCreated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: enums.ActorRoleTrader.String()},
			Data: payloads.TransactionCreatedEvent{
				TransactionID:  txn.ID,
				BuyerID:        txn.BuyerID,
				SellerID:       txn.SellerID,
				ItemCount:      len(items),
				TotalCentimos:  txn.TotalCentimos,
				SellerDeadline: sellerDeadline,
			},
		})
	})
	if err != nil {
		created = nil
		return nil, err
	}
	return created, nil
}
