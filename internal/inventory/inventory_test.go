package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Listing{}, &models.ListingReservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedListing(t *testing.T, db *gorm.DB, qty int) models.Listing {
	t.Helper()
	listing := models.Listing{
		ID:            uuid.New(),
		SellerID:      uuid.New(),
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

func TestReserveMovesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 5)
	txnID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: txnID,
			Qty:           3,
			ExpiresAt:     time.Now().Add(24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var got models.Listing
	if err := db.First(&got, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if got.AvailableQty != 2 || got.ReservedQty != 3 {
		t.Fatalf("unexpected counters: available=%d reserved=%d", got.AvailableQty, got.ReservedQty)
	}

	var holds []models.ListingReservation
	if err := db.Where("transaction_id = ?", txnID).Find(&holds).Error; err != nil {
		t.Fatalf("load holds: %v", err)
	}
	if len(holds) != 1 || holds[0].Qty != 3 {
		t.Fatalf("unexpected holds: %+v", holds)
	}
}

func TestReserveNeverOversells(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 1)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: uuid.New(),
			Qty:           1,
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: uuid.New(),
			Qty:           1,
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	})
	if err == nil {
		t.Fatal("expected second reserve of last copy to fail")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	var got models.Listing
	if err := db.First(&got, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if got.AvailableQty != 0 || got.ReservedQty != 1 {
		t.Fatalf("counters drifted: available=%d reserved=%d", got.AvailableQty, got.ReservedQty)
	}
}

func TestReserveConcurrentBuyersLastCopy(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 1)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- db.Transaction(func(tx *gorm.DB) error {
				return Reserve(ctx, tx, ReservationRequest{
					ListingID:     listing.ID,
					TransactionID: uuid.New(),
					Qty:           1,
					ExpiresAt:     time.Now().Add(time.Hour),
				})
			})
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
				t.Fatalf("unexpected error: %v", err)
			}
			losses++
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got %d wins and %d losses", wins, losses)
	}

	var got models.Listing
	if err := db.First(&got, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if got.AvailableQty != 0 || got.ReservedQty != 1 {
		t.Fatalf("counters drifted: available=%d reserved=%d", got.AvailableQty, got.ReservedQty)
	}

	var holds int64
	if err := db.Model(&models.ListingReservation{}).Where("listing_id = ?", listing.ID).Count(&holds).Error; err != nil {
		t.Fatalf("count holds: %v", err)
	}
	if holds != 1 {
		t.Fatalf("expected one hold, got %d", holds)
	}
}

func TestReserveRejectsInactiveListing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 5)
	if err := db.Model(&models.Listing{}).Where("id = ?", listing.ID).
		Update("status", enums.ListingStatusInactive).Error; err != nil {
		t.Fatalf("deactivate listing: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: uuid.New(),
			Qty:           1,
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock for inactive listing, got %v", err)
	}
}

func TestReleaseReturnsStockAndIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 4)
	txnID := uuid.New()

	if err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: txnID,
			Qty:           2,
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var released []ReleasedStock
	if err := db.Transaction(func(tx *gorm.DB) error {
		var rerr error
		released, rerr = Release(ctx, tx, txnID)
		return rerr
	}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(released) != 1 || released[0].Qty != 2 {
		t.Fatalf("unexpected release results: %+v", released)
	}

	var got models.Listing
	if err := db.First(&got, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if got.AvailableQty != 4 || got.ReservedQty != 0 {
		t.Fatalf("stock not restored: available=%d reserved=%d", got.AvailableQty, got.ReservedQty)
	}

	// releasing again must be a no-op
	if err := db.Transaction(func(tx *gorm.DB) error {
		var rerr error
		released, rerr = Release(ctx, tx, txnID)
		return rerr
	}); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("expected no-op on second release, got %+v", released)
	}
}

func TestConfirmSaleConsumesHoldAndMarksSoldOut(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 2)
	txnID := uuid.New()

	if err := db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: txnID,
			Qty:           2,
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var results []SaleResult
	if err := db.Transaction(func(tx *gorm.DB) error {
		var serr error
		results, serr = ConfirmSale(ctx, tx, txnID)
		return serr
	}); err != nil {
		t.Fatalf("confirm sale: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one sale result, got %d", len(results))
	}
	if !results[0].SoldOut || results[0].TotalSold != 2 {
		t.Fatalf("unexpected sale result: %+v", results[0])
	}

	var got models.Listing
	if err := db.First(&got, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if got.Quantity != 0 || got.ReservedQty != 0 || got.TotalSold != 2 {
		t.Fatalf("unexpected counters after sale: %+v", got)
	}
	if got.Status != enums.ListingStatusSoldOut {
		t.Fatalf("expected sold_out status, got %s", got.Status)
	}

	var holdCount int64
	if err := db.Model(&models.ListingReservation{}).Where("transaction_id = ?", txnID).Count(&holdCount).Error; err != nil {
		t.Fatalf("count holds: %v", err)
	}
	if holdCount != 0 {
		t.Fatalf("expected holds cleared, found %d", holdCount)
	}
}

func TestFindExpired(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 5)
	now := time.Now()

	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: uuid.New(),
			Qty:           1,
			ExpiresAt:     now.Add(-time.Minute),
		}); err != nil {
			return err
		}
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: uuid.New(),
			Qty:           1,
			ExpiresAt:     now.Add(time.Hour),
		})
	}); err != nil {
		t.Fatalf("seed reservations: %v", err)
	}

	var expired []models.ListingReservation
	if err := db.Transaction(func(tx *gorm.DB) error {
		var ferr error
		expired, ferr = FindExpired(ctx, tx, now, 10)
		return ferr
	}); err != nil {
		t.Fatalf("find expired: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected one expired hold, got %d", len(expired))
	}
}

func TestCheckAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	listing := seedListing(t, db, 3)

	avail, err := CheckAvailability(ctx, db, listing.ID)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if avail.AvailableQty != 3 || avail.Status != enums.ListingStatusActive {
		t.Fatalf("unexpected availability: %+v", avail)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return Reserve(ctx, tx, ReservationRequest{
			ListingID:     listing.ID,
			TransactionID: uuid.New(),
			Qty:           2,
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	avail, err = CheckAvailability(ctx, db, listing.ID)
	if err != nil {
		t.Fatalf("check availability after hold: %v", err)
	}
	if avail.AvailableQty != 1 {
		t.Fatalf("expected net availability 1, got %d", avail.AvailableQty)
	}

	_, err = CheckAvailability(ctx, db, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
