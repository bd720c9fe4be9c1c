package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

// TransactionCreatedEvent signals a buyer opened a new transaction with a seller.
type TransactionCreatedEvent struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	ItemCount      int       `json:"item_count"`
	TotalCentimos  int64     `json:"total_centimos"`
	SellerDeadline time.Time `json:"seller_deadline"`
}

// TransactionDecisionEvent is emitted when the seller accepts or rejects.
type TransactionDecisionEvent struct {
	TransactionID    uuid.UUID               `json:"transaction_id"`
	BuyerID          uuid.UUID               `json:"buyer_id"`
	SellerID         uuid.UUID               `json:"seller_id"`
	Status           enums.TransactionStatus `json:"status"`
	DeliveryDeadline *time.Time              `json:"delivery_deadline,omitempty"`
}

// TransactionDeliveredEvent reports the seller marked the trade as delivered.
type TransactionDeliveredEvent struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	DeliveredAt     time.Time `json:"delivered_at"`
	ConfirmDeadline time.Time `json:"confirm_deadline"`
}

// TransactionPaidEvent reports the buyer confirmed payment.
type TransactionPaidEvent struct {
	TransactionID uuid.UUID           `json:"transaction_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SellerID      uuid.UUID           `json:"seller_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalCentimos int64               `json:"total_centimos"`
}

// TransactionCompletedEvent closes out a trade.
type TransactionCompletedEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	SellerID      uuid.UUID               `json:"seller_id"`
	Status        enums.TransactionStatus `json:"status"`
	CompletedAt   time.Time               `json:"completed_at"`
}

// TransactionCancelledEvent is emitted on any cancellation path.
type TransactionCancelledEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	SellerID      uuid.UUID               `json:"seller_id"`
	Status        enums.TransactionStatus `json:"status"`
	Reason        string                  `json:"reason,omitempty"`
	CancelledAt   time.Time               `json:"cancelled_at"`
}

// TransactionTimedOutEvent is emitted when the sweeper expires a trade.
type TransactionTimedOutEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	SellerID      uuid.UUID               `json:"seller_id"`
	Status        enums.TransactionStatus `json:"status"`
	Deadline      time.Time               `json:"deadline"`
}

// TransactionDisputedEvent flags a trade frozen by a dispute.
type TransactionDisputedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	DisputeID     uuid.UUID             `json:"dispute_id"`
	RaisedByID    uuid.UUID             `json:"raised_by_id"`
	Type          enums.DisputeType     `json:"type"`
	Severity      enums.DisputeSeverity `json:"severity"`
}

// DisputeResolvedEvent reports a moderator decision.
type DisputeResolvedEvent struct {
	TransactionID uuid.UUID            `json:"transaction_id"`
	DisputeID     uuid.UUID            `json:"dispute_id"`
	ResolvedByID  uuid.UUID            `json:"resolved_by_id"`
	Outcome       enums.DisputeOutcome `json:"outcome"`
}

// RatingSubmittedEvent reports a new rating on a transaction.
type RatingSubmittedEvent struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	RatingID      uuid.UUID        `json:"rating_id"`
	RaterID       uuid.UUID        `json:"rater_id"`
	RateeID       uuid.UUID        `json:"ratee_id"`
	Role          enums.RatingRole `json:"role"`
	Score         int              `json:"score"`
}

// ReservationReleasedEvent reports stock returned to a listing.
type ReservationReleasedEvent struct {
	ListingID     uuid.UUID `json:"listing_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Qty           int       `json:"qty"`
	Reason        string    `json:"reason,omitempty"`
}

// ListingSoldOutEvent reports a listing exhausted its available stock.
type ListingSoldOutEvent struct {
	ListingID uuid.UUID `json:"listing_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	TotalSold int       `json:"total_sold"`
}
