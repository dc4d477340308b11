package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateSale          OutboxAggregateType = "sale"
	AggregateInventoryItem OutboxAggregateType = "inventory_item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSale,
	AggregateInventoryItem,
}

// IsValid reports whether the value matches a known aggregate type.
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

// OutboxEventType names a domain event carried by the outbox.
type OutboxEventType string

const (
	EventSaleCreated       OutboxEventType = "sale.created"
	EventSaleUpdated       OutboxEventType = "sale.updated"
	EventSaleDeleted       OutboxEventType = "sale.deleted"
	EventInventoryAdjusted OutboxEventType = "inventory.adjusted"
)

var validEventTypes = []OutboxEventType{
	EventSaleCreated,
	EventSaleUpdated,
	EventSaleDeleted,
	EventInventoryAdjusted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// Aggregate returns the aggregate type an event of this type must carry.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch e {
	case EventSaleCreated, EventSaleUpdated, EventSaleDeleted:
		return AggregateSale
	case EventInventoryAdjusted:
		return AggregateInventoryItem
	}
	return ""
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
