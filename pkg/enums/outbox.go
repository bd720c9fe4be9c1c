package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransaction OutboxAggregateType = "transaction"
	AggregateListing     OutboxAggregateType = "listing"
	AggregateDispute     OutboxAggregateType = "dispute"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTransaction,
	AggregateListing,
	AggregateDispute,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTransactionCreated    OutboxEventType = "transaction_created"
	EventTransactionAccepted   OutboxEventType = "transaction_accepted"
	EventTransactionRejected   OutboxEventType = "transaction_rejected"
	EventTransactionDelivered  OutboxEventType = "transaction_delivered"
	EventTransactionPaid       OutboxEventType = "transaction_paid"
	EventTransactionCompleted  OutboxEventType = "transaction_completed"
	EventTransactionCancelled  OutboxEventType = "transaction_cancelled"
	EventTransactionTimedOut   OutboxEventType = "transaction_timed_out"
	EventTransactionDisputed   OutboxEventType = "transaction_disputed"
	EventDisputeResolved       OutboxEventType = "dispute_resolved"
	EventRatingSubmitted       OutboxEventType = "rating_submitted"
	EventReservationReleased   OutboxEventType = "reservation_released"
	EventListingSoldOut        OutboxEventType = "listing_sold_out"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransactionCreated,
	EventTransactionAccepted,
	EventTransactionRejected,
	EventTransactionDelivered,
	EventTransactionPaid,
	EventTransactionCompleted,
	EventTransactionCancelled,
	EventTransactionTimedOut,
	EventTransactionDisputed,
	EventDisputeResolved,
	EventRatingSubmitted,
	EventReservationReleased,
	EventListingSoldOut,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason classifies why an outbox event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

// IsValid reports whether the value matches the canonical DLQ error reason enum.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
