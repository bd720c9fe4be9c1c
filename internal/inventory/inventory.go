package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
)

// ReservationRequest asks for qty units of a listing to be held for a transaction.
type ReservationRequest struct {
	ListingID     uuid.UUID
	TransactionID uuid.UUID
	Qty           int
	ExpiresAt     time.Time
}

// ReleasedStock reports units returned to a listing.
type ReleasedStock struct {
	ListingID     uuid.UUID
	TransactionID uuid.UUID
	Qty           int
}

// SaleResult reports the listing counters after a confirmed sale.
type SaleResult struct {
	ListingID uuid.UUID
	SellerID  uuid.UUID
	Qty       int
	TotalSold int
	SoldOut   bool
}

// Reserve atomically moves units from available to reserved and records the
// hold. The decrement is a single conditional UPDATE, so two buyers racing
// for the last copy cannot both win.
func Reserve(ctx context.Context, tx *gorm.DB, req ReservationRequest) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if req.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
	}
	if req.ListingID == uuid.Nil || req.TransactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing and transaction ids required")
	}

	res := tx.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ? AND status = ? AND available_qty >= ?", req.ListingID, enums.ListingStatusActive, req.Qty).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty - ?", req.Qty),
			"reserved_qty":  gorm.Expr("reserved_qty + ?", req.Qty),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve listing stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "listing unavailable or insufficient stock").
			WithDetails(map[string]any{"listing_id": req.ListingID, "qty": req.Qty})
	}

	hold := models.ListingReservation{
		ListingID:     req.ListingID,
		TransactionID: req.TransactionID,
		Qty:           req.Qty,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := tx.WithContext(ctx).Create(&hold).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reservation")
	}
	return nil
}

// Release returns all holds for a transaction to their listings. Releasing a
// transaction with no holds is a no-op, so retries and double releases are safe.
func Release(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) ([]ReleasedStock, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var holds []models.ListingReservation
	if err := tx.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Find(&holds).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}
	if len(holds) == 0 {
		return nil, nil
	}

	released := make([]ReleasedStock, 0, len(holds))
	for _, hold := range holds {
		res := tx.WithContext(ctx).Model(&models.Listing{}).
			Where("id = ? AND reserved_qty >= ?", hold.ListingID, hold.Qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty + ?", hold.Qty),
				"reserved_qty":  gorm.Expr("reserved_qty - ?", hold.Qty),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "return reserved stock")
		}
		if res.RowsAffected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing reserved counter out of sync").
				WithDetails(map[string]any{"listing_id": hold.ListingID})
		}
		if err := tx.WithContext(ctx).Delete(&models.ListingReservation{}, "id = ?", hold.ID).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete reservation")
		}
		released = append(released, ReleasedStock{
			ListingID:     hold.ListingID,
			TransactionID: transactionID,
			Qty:           hold.Qty,
		})
	}
	return released, nil
}

// ConfirmSale converts all holds for a transaction into completed sales:
// reserved stock is consumed rather than returned, total_sold grows, and a
// listing with nothing left flips to sold_out.
func ConfirmSale(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) ([]SaleResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var holds []models.ListingReservation
	if err := tx.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Find(&holds).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}
	if len(holds) == 0 {
		return nil, nil
	}

	results := make([]SaleResult, 0, len(holds))
	for _, hold := range holds {
		res := tx.WithContext(ctx).Model(&models.Listing{}).
			Where("id = ? AND reserved_qty >= ?", hold.ListingID, hold.Qty).
			Updates(map[string]any{
				"reserved_qty": gorm.Expr("reserved_qty - ?", hold.Qty),
				"quantity":     gorm.Expr("quantity - ?", hold.Qty),
				"total_sold":   gorm.Expr("total_sold + ?", hold.Qty),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "consume reserved stock")
		}
		if res.RowsAffected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing reserved counter out of sync").
				WithDetails(map[string]any{"listing_id": hold.ListingID})
		}

		var listing models.Listing
		if err := tx.WithContext(ctx).First(&listing, "id = ?", hold.ListingID).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload listing")
		}

		soldOut := false
		if listing.AvailableQty == 0 && listing.ReservedQty == 0 && listing.Status == enums.ListingStatusActive {
			soldOut = true
			if err := tx.WithContext(ctx).Model(&models.Listing{}).
				Where("id = ?", listing.ID).
				Update("status", enums.ListingStatusSoldOut).Error; err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing sold out")
			}
		}

		if err := tx.WithContext(ctx).Delete(&models.ListingReservation{}, "id = ?", hold.ID).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete reservation")
		}

		results = append(results, SaleResult{
			ListingID: listing.ID,
			SellerID:  listing.SellerID,
			Qty:       hold.Qty,
			TotalSold: listing.TotalSold,
			SoldOut:   soldOut,
		})
	}
	return results, nil
}

// FindExpired returns reservations whose hold window has lapsed.
func FindExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.ListingReservation, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if limit <= 0 {
		limit = 100
	}
	var holds []models.ListingReservation
	err := tx.WithContext(ctx).
		Where("expires_at < ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&holds).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load expired reservations")
	}
	return holds, nil
}

// Availability is the buyer-visible stock snapshot for a listing. Raw hold
// counters stay private to the seller and the reservation holders.
type Availability struct {
	ListingID    uuid.UUID           `json:"listing_id"`
	Status       enums.ListingStatus `json:"status"`
	AvailableQty int                 `json:"available_qty"`
}

// CheckAvailability reads the net purchasable quantity for a listing.
func CheckAvailability(ctx context.Context, db *gorm.DB, listingID uuid.UUID) (*Availability, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	var listing models.Listing
	if err := db.WithContext(ctx).First(&listing, "id = ?", listingID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return &Availability{
		ListingID:    listing.ID,
		Status:       listing.Status,
		AvailableQty: listing.AvailableQty,
	}, nil
}
