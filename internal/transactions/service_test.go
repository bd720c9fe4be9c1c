package transactions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/internal/inventory"
	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:transactions_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Listing{},
		&models.ListingReservation{},
		&models.Transaction{},
		&models.TransactionItem{},
		&models.Rating{},
		&models.Dispute{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type gormRunner struct {
	db *gorm.DB
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func testTradeConfig() config.TradeConfig {
	return config.TradeConfig{
		SellerResponseWindow: 24 * time.Hour,
		DeliveryWindow:       144 * time.Hour,
		BuyerConfirmWindow:   240 * time.Hour,
		RatingWindow:         336 * time.Hour,
		ReservationTTL:       24 * time.Hour,
		ShippingFlatCentimos: 600,
	}
}

func newTestService(t *testing.T, db *gorm.DB) *service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ob := outbox.NewService(outbox.NewRepository(db), logg)
	svc, err := NewService(NewRepository(db), gormRunner{db: db}, ob, testTradeConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc.(*service)
}

func seedListing(t *testing.T, db *gorm.DB, sellerID uuid.UUID, qty int) models.Listing {
	t.Helper()
	listing := models.Listing{
		SellerID:      sellerID,
		CardName:      "Charizard",
		SetCode:       "BS",
		Condition:     enums.CardConditionNearMint,
		Language:      "en",
		PriceCentimos: 25000,
		Quantity:      qty,
		AvailableQty:  qty,
		Status:        enums.ListingStatusActive,
	}
	if err := db.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

// seedTransaction creates a pending transaction with a live reservation
// against the given listing, the state a trade is in right after checkout.
func seedTransaction(t *testing.T, db *gorm.DB, listing models.Listing, buyerID uuid.UUID, qty int) *models.Transaction {
	t.Helper()
	now := time.Now().UTC()
	subtotal := listing.PriceCentimos * int64(qty)
	txn := &models.Transaction{
		BuyerID:          buyerID,
		SellerID:         listing.SellerID,
		Status:           enums.TransactionStatusPendingSellerResponse,
		PaymentMethod:    enums.PaymentMethodSinpe,
		SubtotalCentimos: subtotal,
		ShippingCentimos: 600,
		TotalCentimos:    subtotal + 600,
		SellerDeadline:   now.Add(24 * time.Hour),
		Items: []models.TransactionItem{{
			ListingID:         listing.ID,
			CardName:          listing.CardName,
			SetCode:           listing.SetCode,
			Condition:         listing.Condition,
			Language:          listing.Language,
			Qty:               qty,
			UnitPriceCentimos: listing.PriceCentimos,
			LineTotalCentimos: subtotal,
		}},
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return inventory.Reserve(context.Background(), tx, inventory.ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: txn.ID,
			Qty:           qty,
			ExpiresAt:     now.Add(24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	return txn
}

func advanceStatus(t *testing.T, db *gorm.DB, id uuid.UUID, updates map[string]any) {
	t.Helper()
	if err := db.Model(&models.Transaction{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		t.Fatalf("advance status: %v", err)
	}
}

func countOutboxEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return count
}

func TestLifecycleHappyPath(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	listing := seedListing(t, db, sellerID, 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)

	if txn.TotalCentimos != 25600 {
		t.Fatalf("expected total 25600, got %d", txn.TotalCentimos)
	}

	originStore := "Geek Out GAM"
	sellerContact := &types.Contact{DisplayName: "Marco", Phone: "+506 8888 0000", Province: "San José"}
	accepted, err := svc.Accept(ctx, DecisionInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: sellerID, ActorRole: enums.ActorRoleTrader,
	}, OriginStore: &originStore, SellerContact: sellerContact})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != enums.TransactionStatusAcceptedPendingDelivery {
		t.Fatalf("unexpected status after accept: %s", accepted.Status)
	}
	if accepted.OriginStore == nil || *accepted.OriginStore != originStore {
		t.Fatalf("expected origin store recorded, got %v", accepted.OriginStore)
	}

	var stored models.Transaction
	if err := db.First(&stored, "id = ?", txn.ID).Error; err != nil {
		t.Fatalf("reload transaction: %v", err)
	}
	if stored.SellerContact == nil || stored.SellerContact.DisplayName != "Marco" {
		t.Fatalf("expected seller contact snapshot persisted, got %+v", stored.SellerContact)
	}
	if accepted.DeliveryDeadline == nil || accepted.AcceptedAt == nil {
		t.Fatal("expected delivery deadline and accepted timestamp")
	}
	if got := accepted.DeliveryDeadline.Sub(*accepted.AcceptedAt); got != 144*time.Hour {
		t.Fatalf("expected 144h delivery window, got %s", got)
	}

	delivered, err := svc.ConfirmDelivery(ctx, DeliveryInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: sellerID, ActorRole: enums.ActorRoleTrader,
	}})
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if delivered.Status != enums.TransactionStatusDeliveredPendingPayment {
		t.Fatalf("unexpected status after delivery: %s", delivered.Status)
	}

	paid, err := svc.ConfirmPayment(ctx, PaymentInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: buyerID, ActorRole: enums.ActorRoleTrader,
	}})
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if paid.Status != enums.TransactionStatusPaymentConfirmed {
		t.Fatalf("unexpected status after payment: %s", paid.Status)
	}
	if paid.RatingDeadline == nil {
		t.Fatal("expected rating deadline after payment")
	}

	if _, err := svc.SubmitRating(ctx, RatingInput{
		TransactionID: txn.ID, RaterID: buyerID, Score: 5,
	}); err != nil {
		t.Fatalf("buyer rating: %v", err)
	}
	if _, err := svc.SubmitRating(ctx, RatingInput{
		TransactionID: txn.ID, RaterID: sellerID, Score: 4,
	}); err != nil {
		t.Fatalf("seller rating: %v", err)
	}

	var final models.Transaction
	if err := db.First(&final, "id = ?", txn.ID).Error; err != nil {
		t.Fatalf("load final transaction: %v", err)
	}
	if final.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed after both ratings, got %s", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed timestamp")
	}

	var finalListing models.Listing
	if err := db.First(&finalListing, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if finalListing.Quantity != 0 || finalListing.ReservedQty != 0 || finalListing.TotalSold != 1 {
		t.Fatalf("unexpected listing counters: %+v", finalListing)
	}
	if finalListing.Status != enums.ListingStatusSoldOut {
		t.Fatalf("expected sold out listing, got %s", finalListing.Status)
	}

	var holds int64
	if err := db.Model(&models.ListingReservation{}).Where("transaction_id = ?", txn.ID).Count(&holds).Error; err != nil {
		t.Fatalf("count holds: %v", err)
	}
	if holds != 0 {
		t.Fatalf("expected reservation cleared, found %d", holds)
	}

	if got := countOutboxEvents(t, db, enums.EventTransactionCompleted); got != 1 {
		t.Fatalf("expected exactly one completed event, got %d", got)
	}
}

func TestAcceptRequiresSeller(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)

	_, err := svc.Accept(context.Background(), DecisionInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: buyerID, ActorRole: enums.ActorRoleTrader,
	}})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRejectReleasesStock(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	sellerID := uuid.New()
	listing := seedListing(t, db, sellerID, 3)
	txn := seedTransaction(t, db, listing, uuid.New(), 2)

	rejected, err := svc.Reject(ctx, CancelInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: sellerID, ActorRole: enums.ActorRoleTrader,
	}, Reason: "not available anymore"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.TransactionStatusCancelledBySeller {
		t.Fatalf("unexpected status: %s", rejected.Status)
	}

	var after models.Listing
	if err := db.First(&after, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if after.AvailableQty != 3 || after.ReservedQty != 0 {
		t.Fatalf("expected stock returned, got %+v", after)
	}
	if got := countOutboxEvents(t, db, enums.EventReservationReleased); got != 1 {
		t.Fatalf("expected release event, got %d", got)
	}
}

func TestCancelByBuyerFromAccepted(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status":      enums.TransactionStatusAcceptedPendingDelivery,
		"accepted_at": time.Now().UTC(),
	})

	cancelled, err := svc.Cancel(ctx, CancelInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: buyerID, ActorRole: enums.ActorRoleTrader,
	}, Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.TransactionStatusCancelledByBuyer {
		t.Fatalf("unexpected status: %s", cancelled.Status)
	}

	var after models.Listing
	if err := db.First(&after, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if after.AvailableQty != 1 {
		t.Fatalf("expected stock returned, got %+v", after)
	}
}

func TestCancelRejectedAfterDelivery(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)
	advanceStatus(t, db, txn.ID, map[string]any{
		"status": enums.TransactionStatusDeliveredPendingPayment,
	})

	_, err := svc.Cancel(context.Background(), CancelInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: buyerID, ActorRole: enums.ActorRoleTrader,
	}, Reason: "too late"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConfirmPaymentRequiresDelivered(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)

	_, err := svc.ConfirmPayment(context.Background(), PaymentInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: buyerID, ActorRole: enums.ActorRoleTrader,
	}})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestAdminCancelRequiresModerator(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, uuid.New(), 1)

	_, err := svc.AdminCancel(context.Background(), CancelInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: uuid.New(), ActorRole: enums.ActorRoleTrader,
	}, Reason: "fraud report"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	cancelled, err := svc.AdminCancel(context.Background(), CancelInput{ActionInput: ActionInput{
		TransactionID: txn.ID, ActorID: uuid.New(), ActorRole: enums.ActorRoleModerator,
	}, Reason: "fraud report"})
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled.Status != enums.TransactionStatusCancelledByAdmin {
		t.Fatalf("unexpected status: %s", cancelled.Status)
	}
}

func TestGetRestrictedToParticipants(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	buyerID := uuid.New()
	listing := seedListing(t, db, uuid.New(), 1)
	txn := seedTransaction(t, db, listing, buyerID, 1)

	if _, err := svc.Get(ctx, txn.ID, buyerID, enums.ActorRoleTrader); err != nil {
		t.Fatalf("buyer get: %v", err)
	}
	if _, err := svc.Get(ctx, txn.ID, uuid.New(), enums.ActorRoleModerator); err != nil {
		t.Fatalf("moderator get: %v", err)
	}
	_, err := svc.Get(ctx, txn.ID, uuid.New(), enums.ActorRoleTrader)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
