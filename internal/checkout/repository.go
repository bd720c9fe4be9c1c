package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
)

// ListingRepository exposes the listing lookups checkout needs.
type ListingRepository interface {
	WithTx(tx *gorm.DB) ListingRepository
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error)
}

type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository builds a listing repository backed by the provided DB.
func NewListingRepository(db *gorm.DB) ListingRepository {
	if db == nil {
		return nil
	}
	return &listingRepository{db: db}
}

func (r *listingRepository) WithTx(tx *gorm.DB) ListingRepository {
	if tx == nil {
		return r
	}
	return &listingRepository{db: tx}
}

func (r *listingRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var listings []models.Listing
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}
