package enums

import "fmt"

// OutboxAggregateType names the record an outbox event was emitted for.
type OutboxAggregateType string

const (
	AggregateInvoice      OutboxAggregateType = "invoice"
	AggregateGiftTransfer OutboxAggregateType = "gift_transfer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateInvoice,
	AggregateGiftTransfer,
}

// IsValid reports whether the value is a known aggregate type.
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

// OutboxEventType names the post-commit side effect to deliver.
type OutboxEventType string

const (
	EventGiftPurchased OutboxEventType = "gift_purchased"
	EventGiftReceived  OutboxEventType = "gift_received"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGiftPurchased,
	EventGiftReceived,
}

// IsValid reports whether the value is a known outbox event type.
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
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
