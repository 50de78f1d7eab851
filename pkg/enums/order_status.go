package enums

import "fmt"

// OrderStatus tracks a shipment order as it moves with its trip.
type OrderStatus string

const (
	OrderStatusReadyToTransport OrderStatus = "ready_to_transport"
	OrderStatusAssigned         OrderStatus = "assigned"
	OrderStatusInTransit        OrderStatus = "in_transit"
	OrderStatusTransferred      OrderStatus = "transferred"
	OrderStatusDelivered        OrderStatus = "delivered"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusReadyToTransport,
	OrderStatusAssigned,
	OrderStatusInTransit,
	OrderStatusTransferred,
	OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
