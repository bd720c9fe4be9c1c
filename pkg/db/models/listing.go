package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

// Listing represents a seller's card offering with its inventory counters.
type Listing struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	SellerID       uuid.UUID            `gorm:"column:seller_id;type:uuid;not null"`
	CardName       string               `gorm:"column:card_name;not null"`
	SetCode        string               `gorm:"column:set_code;not null"`
	CollectorNum   string               `gorm:"column:collector_num"`
	Condition      enums.CardCondition  `gorm:"column:condition;type:card_condition;not null"`
	Language       string               `gorm:"column:language;not null;default:'en'"`
	Foil           bool                 `gorm:"column:foil;not null;default:false"`
	PriceCentimos  int64                `gorm:"column:price_centimos;not null"`
	Quantity       int                  `gorm:"column:quantity;not null"`
	AvailableQty   int                  `gorm:"column:available_qty;not null"`
	ReservedQty    int                  `gorm:"column:reserved_qty;not null;default:0"`
	TotalSold      int                  `gorm:"column:total_sold;not null;default:0"`
	Status         enums.ListingStatus  `gorm:"column:status;type:listing_status;not null;default:'active'"`
	Notes          *string              `gorm:"column:notes"`
	Reservations   []ListingReservation `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// ListingReservation holds units of a listing for a pending transaction.
type ListingReservation struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ListingID     uuid.UUID `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:idx_reservations_txn_listing,priority:2"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:idx_reservations_txn_listing,priority:1"`
	Qty           int       `gorm:"column:qty;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ListingReservation) TableName() string {
	return "listing_reservations"
}
