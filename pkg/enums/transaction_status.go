package enums

import "fmt"

// TransactionStatus tracks the lifecycle of a peer-to-peer trade.
type TransactionStatus string

const (
	TransactionStatusPendingSellerResponse    TransactionStatus = "pending_seller_response"
	TransactionStatusAcceptedPendingDelivery  TransactionStatus = "accepted_pending_delivery"
	TransactionStatusDeliveredPendingPayment  TransactionStatus = "delivered_pending_payment"
	TransactionStatusPaymentConfirmed         TransactionStatus = "payment_confirmed"
	TransactionStatusCompletedNoRating        TransactionStatus = "completed_no_rating"
	TransactionStatusCompleted                TransactionStatus = "completed"
	TransactionStatusCancelledBySeller        TransactionStatus = "cancelled_by_seller"
	TransactionStatusCancelledByBuyer         TransactionStatus = "cancelled_by_buyer"
	TransactionStatusCancelledTimeoutSeller   TransactionStatus = "cancelled_timeout_seller"
	TransactionStatusCancelledTimeoutDelivery TransactionStatus = "cancelled_timeout_delivery"
	TransactionStatusCancelledByAdmin         TransactionStatus = "cancelled_by_admin"
	TransactionStatusDisputed                 TransactionStatus = "disputed"
	TransactionStatusResolvedFavourBuyer      TransactionStatus = "resolved_favour_buyer"
	TransactionStatusResolvedFavourSeller     TransactionStatus = "resolved_favour_seller"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPendingSellerResponse,
	TransactionStatusAcceptedPendingDelivery,
	TransactionStatusDeliveredPendingPayment,
	TransactionStatusPaymentConfirmed,
	TransactionStatusCompletedNoRating,
	TransactionStatusCompleted,
	TransactionStatusCancelledBySeller,
	TransactionStatusCancelledByBuyer,
	TransactionStatusCancelledTimeoutSeller,
	TransactionStatusCancelledTimeoutDelivery,
	TransactionStatusCancelledByAdmin,
	TransactionStatusDisputed,
	TransactionStatusResolvedFavourBuyer,
	TransactionStatusResolvedFavourSeller,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined from the status.
func (t TransactionStatus) IsTerminal() bool {
	switch t {
	case TransactionStatusCompleted,
		TransactionStatusCancelledBySeller,
		TransactionStatusCancelledByBuyer,
		TransactionStatusCancelledTimeoutSeller,
		TransactionStatusCancelledTimeoutDelivery,
		TransactionStatusCancelledByAdmin,
		TransactionStatusResolvedFavourBuyer,
		TransactionStatusResolvedFavourSeller:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether the status is one of the cancellation branches.
func (t TransactionStatus) IsCancelled() bool {
	switch t {
	case TransactionStatusCancelledBySeller,
		TransactionStatusCancelledByBuyer,
		TransactionStatusCancelledTimeoutSeller,
		TransactionStatusCancelledTimeoutDelivery,
		TransactionStatusCancelledByAdmin:
		return true
	default:
		return false
	}
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
