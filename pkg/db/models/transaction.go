package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/types"
)

// Transaction is a single buyer/seller trade moving through its lifecycle.
type Transaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	Status            enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending_seller_response';index"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:payment_method;not null;default:'cash'"`
	BuyerContact      *types.Contact          `gorm:"column:buyer_contact;type:jsonb;serializer:json"`
	SellerContact     *types.Contact          `gorm:"column:seller_contact;type:jsonb;serializer:json"`
	SubtotalCentimos  int64                   `gorm:"column:subtotal_centimos;not null"`
	ShippingCentimos  int64                   `gorm:"column:shipping_centimos;not null;default:0"`
	TaxCentimos       int64                   `gorm:"column:tax_centimos;not null;default:0"`
	TotalCentimos     int64                   `gorm:"column:total_centimos;not null"`
	DestinationStore  *string                 `gorm:"column:destination_store"`
	OriginStore       *string                 `gorm:"column:origin_store"`
	BuyerNotes        *string                 `gorm:"column:buyer_notes"`
	SellerNotes       *string                 `gorm:"column:seller_notes"`
	CancelReason      *string                 `gorm:"column:cancel_reason"`
	SellerDeadline    time.Time               `gorm:"column:seller_deadline;not null"`
	DeliveryDeadline  *time.Time              `gorm:"column:delivery_deadline"`
	ConfirmDeadline   *time.Time              `gorm:"column:confirm_deadline"`
	RatingDeadline    *time.Time              `gorm:"column:rating_deadline"`
	AcceptedAt        *time.Time              `gorm:"column:accepted_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	PaymentConfirmedAt *time.Time             `gorm:"column:payment_confirmed_at"`
	CompletedAt       *time.Time              `gorm:"column:completed_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	DisputedAt        *time.Time              `gorm:"column:disputed_at"`
	Items             []TransactionItem       `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	Ratings           []Rating                `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	Dispute           *Dispute                `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// TransactionItem freezes a purchased line at the price it was agreed.
type TransactionItem struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID     uuid.UUID           `gorm:"column:transaction_id;type:uuid;not null;index"`
	ListingID         uuid.UUID           `gorm:"column:listing_id;type:uuid;not null"`
	CardName          string              `gorm:"column:card_name;not null"`
	SetCode           string              `gorm:"column:set_code;not null"`
	Condition         enums.CardCondition `gorm:"column:condition;type:card_condition;not null"`
	Language          string              `gorm:"column:language;not null"`
	Foil              bool                `gorm:"column:foil;not null;default:false"`
	Qty               int                 `gorm:"column:qty;not null"`
	UnitPriceCentimos int64               `gorm:"column:unit_price_centimos;not null"`
	LineTotalCentimos int64               `gorm:"column:line_total_centimos;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
}
