package transactions

import (
	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/types"
)

// ActionInput carries the actor context for a lifecycle transition.
type ActionInput struct {
	TransactionID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
}

// DecisionInput extends ActionInput with the seller's acceptance details.
// SellerContact is snapshotted onto the transaction the moment the seller
// commits, the counterpart of the buyer contact frozen at creation.
type DecisionInput struct {
	ActionInput
	Notes         *string
	OriginStore   *string
	SellerContact *types.Contact
}

// CancelInput carries the cancellation reason.
type CancelInput struct {
	ActionInput
	Reason string
}

// DeliveryInput carries the seller's optional handoff note.
type DeliveryInput struct {
	ActionInput
	Notes *string
}

// PaymentInput carries the buyer's optional payment note.
type PaymentInput struct {
	ActionInput
	Notes *string
}

// RatingInput is a one-per-role review submission.
type RatingInput struct {
	TransactionID uuid.UUID
	RaterID       uuid.UUID
	Score         int
	Comment       *string
}

// DisputeInput captures the structured report freezing a transaction.
type DisputeInput struct {
	TransactionID uuid.UUID
	ActorID       uuid.UUID
	Type          enums.DisputeType
	Severity      enums.DisputeSeverity
	Description   string
	EvidenceURLs  []string
}

// ResolveDisputeInput is the moderator decision on an open dispute.
type ResolveDisputeInput struct {
	TransactionID uuid.UUID
	ModeratorID   uuid.UUID
	Outcome       enums.DisputeOutcome
	Note          *string
}
