package transactions

import (
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
)

// transitionTable is the single source of truth for legal status moves.
// Anything not listed here is rejected with STATE_CONFLICT.
var transitionTable = map[enums.TransactionStatus][]enums.TransactionStatus{
	enums.TransactionStatusPendingSellerResponse: {
		enums.TransactionStatusAcceptedPendingDelivery,
		enums.TransactionStatusCancelledBySeller,
		enums.TransactionStatusCancelledByBuyer,
		enums.TransactionStatusCancelledTimeoutSeller,
		enums.TransactionStatusCancelledByAdmin,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusAcceptedPendingDelivery: {
		enums.TransactionStatusDeliveredPendingPayment,
		enums.TransactionStatusCancelledBySeller,
		enums.TransactionStatusCancelledByBuyer,
		enums.TransactionStatusCancelledTimeoutDelivery,
		enums.TransactionStatusCancelledByAdmin,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusDeliveredPendingPayment: {
		enums.TransactionStatusPaymentConfirmed,
		enums.TransactionStatusCancelledByAdmin,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusPaymentConfirmed: {
		enums.TransactionStatusCompleted,
		enums.TransactionStatusCompletedNoRating,
		enums.TransactionStatusCancelledByAdmin,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusCompletedNoRating: {
		enums.TransactionStatusCompleted,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusDisputed: {
		enums.TransactionStatusResolvedFavourBuyer,
		enums.TransactionStatusResolvedFavourSeller,
	},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to enums.TransactionStatus) bool {
	for _, allowed := range transitionTable[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal targets from the given status.
func AllowedTransitions(from enums.TransactionStatus) []enums.TransactionStatus {
	targets := transitionTable[from]
	out := make([]enums.TransactionStatus, len(targets))
	copy(out, targets)
	return out
}

func invalidTransition(from, to enums.TransactionStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid state transition").
		WithDetails(map[string]any{
			"from": from.String(),
			"to":   to.String(),
		})
}
