package enums

import "fmt"

// RatingRole identifies which side of the trade submitted a rating.
type RatingRole string

const (
	RatingRoleBuyer  RatingRole = "buyer"
	RatingRoleSeller RatingRole = "seller"
)

var validRatingRoles = []RatingRole{
	RatingRoleBuyer,
	RatingRoleSeller,
}

// String implements fmt.Stringer.
func (r RatingRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RatingRole.
func (r RatingRole) IsValid() bool {
	for _, candidate := range validRatingRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRatingRole converts raw input into a RatingRole.
func ParseRatingRole(value string) (RatingRole, error) {
	for _, candidate := range validRatingRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rating role %q", value)
}
