package enums

import "fmt"

// ActivityType labels rows of the append-only activity log.
type ActivityType string

const (
	ActivityTypeGiftPurchased ActivityType = "gift_purchased"
	ActivityTypeGiftSent      ActivityType = "gift_sent"
)

var validActivityTypes = []ActivityType{
	ActivityTypeGiftPurchased,
	ActivityTypeGiftSent,
}

// String implements fmt.Stringer.
func (a ActivityType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActivityType.
func (a ActivityType) IsValid() bool {
	for _, candidate := range validActivityTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActivityType converts raw input into a ActivityType.
func ParseActivityType(value string) (ActivityType, error) {
	for _, candidate := range validActivityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid activity type %q", value)
}
