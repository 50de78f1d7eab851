package orders

import (
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/enums"
)

const (
	Collection     = "orders"
	LinkCollection = "trip_order_links"
)

// Order is a shipment docket carried by at most one trip at a time.
type Order struct {
	ID                     string            `json:"id"`
	DocketCode             string            `json:"docket_code"`
	ConsignorName          string            `json:"consignor_name,omitempty"`
	ConsigneeName          string            `json:"consignee_name,omitempty"`
	Status                 enums.OrderStatus `json:"status"`
	ToBeTransferred        bool              `json:"to_be_transferred"`
	CurrentLocation        string            `json:"current_location"`
	PreviousCenterLocation *string           `json:"previous_center_location,omitempty"`
	TransferCenterLocation *string           `json:"transfer_center_location,omitempty"`
	UpdatedAt              time.Time         `json:"updated_at"`

	Version int64 `json:"-"`
}

// TripOrderLink lists the orders riding on one trip.
type TripOrderLink struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	OrderIDs  []string  `json:"order_ids"`
	UpdatedAt time.Time `json:"updated_at"`

	Version int64 `json:"-"`
}

// SyncResult reports what a cascade touched.
type SyncResult struct {
	TripID   string         `json:"trip_id"`
	TripType enums.TripType `json:"trip_type"`
	Updated  []string       `json:"updated"`
	Skipped  []string       `json:"skipped"`
}

// LinkResult reports the status diff applied when a trip's orders are replaced.
type LinkResult struct {
	TripID   string   `json:"trip_id"`
	OrderIDs []string `json:"order_ids"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
}
