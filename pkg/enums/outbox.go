package enums

import "fmt"

// OutboxAggregateType names the document family an intent event belongs to.
type OutboxAggregateType string

const (
	AggregateTrip OutboxAggregateType = "trip"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTrip,
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

// OutboxEventType names the follow-up work an intent event stands for.
type OutboxEventType string

const (
	EventTripTypeChanged OutboxEventType = "trip_type_changed"
)

var validEventTypes = []OutboxEventType{
	EventTripTypeChanged,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
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

// OutboxStatus is the processing state of an intent event.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusCompleted OutboxStatus = "completed"
	OutboxStatusDead      OutboxStatus = "dead"
)

// IsTerminal reports whether the relay should stop looking at the event.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusCompleted || s == OutboxStatusDead
}
