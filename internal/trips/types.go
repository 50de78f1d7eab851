package trips

import (
	"strings"
	"time"

	"github.com/angelmondragon/tripops-backend/internal/orders"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const Collection = "trips"

// Trip is a scheduled truck run. DriverID and TruckID are nil while
// unassigned.
type Trip struct {
	ID            string           `json:"id"`
	Code          string           `json:"code"`
	Origin        string           `json:"origin"`
	Destination   string           `json:"destination"`
	DriverID      *string          `json:"driver_id,omitempty"`
	TruckID       *string          `json:"truck_id,omitempty"`
	StopCount     int              `json:"stop_count"`
	StartDate     time.Time        `json:"start_date"`
	Type          enums.TripType   `json:"type"`
	CurrentStatus enums.TripStatus `json:"current_status"`
	Odometer      *Odometer        `json:"odometer,omitempty"`
	Voucher       *wallets.Voucher `json:"voucher,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`

	Version int64 `json:"-"`
}

// Odometer is the start and end reading pair; End is nil until the trip closes.
type Odometer struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// HasCrew reports whether both a driver and a truck are assigned.
func (t *Trip) HasCrew() bool {
	return t.DriverID != nil && t.TruckID != nil
}

type CreateTripInput struct {
	Code        string
	Origin      string
	Destination string
	DriverID    *string
	TruckID     *string
	StopCount   int
	StartDate   time.Time
	Odometer    *Odometer
}

type AssignCrewInput struct {
	TripID   string
	DriverID *string
	TruckID  *string
}

type TypeChangeInput struct {
	TripID    string
	Type      enums.TripType
	SubStatus *enums.TripStatus
}

// TypeChangeResult is returned even when the order cascade did not apply.
// CascadeErr then carries a CASCADE_PENDING error and the pending intent event
// is retried by the relay or RetryCascade.
type TypeChangeResult struct {
	Trip       *Trip              `json:"trip"`
	Changed    bool               `json:"changed"`
	EventID    string             `json:"event_id,omitempty"`
	Cascade    *orders.SyncResult `json:"cascade,omitempty"`
	CascadeErr *pkgerrors.Error   `json:"-"`
}

type VoucherInput struct {
	TripID            string
	WalletID          string
	AdvanceBalance    decimal.Decimal
	AdditionalBalance []wallets.AdditionalBalance
}

// TripTypeChangedEvent is the payload of the cascade intent event.
type TripTypeChangedEvent struct {
	TripID string         `json:"trip_id"`
	From   enums.TripType `json:"from"`
	To     enums.TripType `json:"to"`
}

// presentRef folds the legacy "Unassigned" style placeholders into nil.
func presentRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := strings.TrimSpace(*ref)
	switch {
	case v == "", strings.EqualFold(v, "NA"), strings.EqualFold(v, "N/A"), strings.EqualFold(v, "Unassigned"):
		return nil
	}
	return &v
}
