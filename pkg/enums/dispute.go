package enums

import "fmt"

// DisputeType categorizes why a participant escalated the trade.
type DisputeType string

const (
	DisputeTypeNotDelivered       DisputeType = "not_delivered"
	DisputeTypeNotAsDescribed     DisputeType = "not_as_described"
	DisputeTypePaymentNotReceived DisputeType = "payment_not_received"
	DisputeTypeCounterfeit        DisputeType = "counterfeit"
	DisputeTypeOther              DisputeType = "other"
)

var validDisputeTypes = []DisputeType{
	DisputeTypeNotDelivered,
	DisputeTypeNotAsDescribed,
	DisputeTypePaymentNotReceived,
	DisputeTypeCounterfeit,
	DisputeTypeOther,
}

// String implements fmt.Stringer.
func (d DisputeType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeType.
func (d DisputeType) IsValid() bool {
	for _, candidate := range validDisputeTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeType converts raw input into a DisputeType.
func ParseDisputeType(value string) (DisputeType, error) {
	for _, candidate := range validDisputeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute type %q", value)
}

// DisputeSeverity ranks how urgently moderation should look at a dispute.
type DisputeSeverity string

const (
	DisputeSeverityLow    DisputeSeverity = "low"
	DisputeSeverityMedium DisputeSeverity = "medium"
	DisputeSeverityHigh   DisputeSeverity = "high"
)

var validDisputeSeverities = []DisputeSeverity{
	DisputeSeverityLow,
	DisputeSeverityMedium,
	DisputeSeverityHigh,
}

// IsValid reports whether the value is a known DisputeSeverity.
func (d DisputeSeverity) IsValid() bool {
	for _, candidate := range validDisputeSeverities {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeSeverity converts raw input into a DisputeSeverity.
func ParseDisputeSeverity(value string) (DisputeSeverity, error) {
	for _, candidate := range validDisputeSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute severity %q", value)
}

// DisputeStatus tracks whether a moderator has resolved the dispute.
type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
)

// IsValid reports whether the value is a known DisputeStatus.
func (d DisputeStatus) IsValid() bool {
	return d == DisputeStatusOpen || d == DisputeStatusResolved
}

// DisputeOutcome is the moderator's terminal ruling.
type DisputeOutcome string

const (
	DisputeOutcomeFavourBuyer  DisputeOutcome = "favour_buyer"
	DisputeOutcomeFavourSeller DisputeOutcome = "favour_seller"
)

var validDisputeOutcomes = []DisputeOutcome{
	DisputeOutcomeFavourBuyer,
	DisputeOutcomeFavourSeller,
}

// IsValid reports whether the value is a known DisputeOutcome.
func (d DisputeOutcome) IsValid() bool {
	for _, candidate := range validDisputeOutcomes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeOutcome converts raw input into a DisputeOutcome.
func ParseDisputeOutcome(value string) (DisputeOutcome, error) {
	for _, candidate := range validDisputeOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute outcome %q", value)
}
