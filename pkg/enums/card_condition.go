package enums

import "fmt"

// CardCondition grades the physical state of a listed card.
type CardCondition string

const (
	CardConditionMint      CardCondition = "mint"
	CardConditionNearMint  CardCondition = "near_mint"
	CardConditionExcellent CardCondition = "excellent"
	CardConditionGood      CardCondition = "good"
	CardConditionPlayed    CardCondition = "played"
	CardConditionPoor      CardCondition = "poor"
)

var validCardConditions = []CardCondition{
	CardConditionMint,
	CardConditionNearMint,
	CardConditionExcellent,
	CardConditionGood,
	CardConditionPlayed,
	CardConditionPoor,
}

// String implements fmt.Stringer.
func (c CardCondition) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CardCondition.
func (c CardCondition) IsValid() bool {
	for _, candidate := range validCardConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCardCondition converts raw input into a CardCondition.
func ParseCardCondition(value string) (CardCondition, error) {
	for _, candidate := range validCardConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid card condition %q", value)
}
