package enums

import "fmt"

// PurchasedGiftStatus reports whether an owned gift can still be sent.
type PurchasedGiftStatus string

const (
	PurchasedGiftStatusAvailable PurchasedGiftStatus = "available"
	PurchasedGiftStatusGifted    PurchasedGiftStatus = "gifted"
)

var validPurchasedGiftStatuses = []PurchasedGiftStatus{
	PurchasedGiftStatusAvailable,
	PurchasedGiftStatusGifted,
}

// String implements fmt.Stringer.
func (p PurchasedGiftStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PurchasedGiftStatus.
func (p PurchasedGiftStatus) IsValid() bool {
	for _, candidate := range validPurchasedGiftStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePurchasedGiftStatus converts raw input into a PurchasedGiftStatus.
func ParsePurchasedGiftStatus(value string) (PurchasedGiftStatus, error) {
	for _, candidate := range validPurchasedGiftStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchased gift status %q", value)
}
