package drivers

import (
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/enums"
)

const (
	Collection             = "drivers"
	LeaveRequestCollection = "leave_requests"
)

type Driver struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Phone            string             `json:"phone,omitempty"`
	Status           enums.DriverStatus `json:"status"`
	EmergencyContact *EmergencyContact  `json:"emergency_contact,omitempty"`
	Leave            LeaveBalance       `json:"leave"`
	UpdatedAt        time.Time          `json:"updated_at"`

	Version int64 `json:"-"`
}

type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation,omitempty"`
}

// LeaveRequest is the audit record kept for every granted request.
type LeaveRequest struct {
	ID              string    `json:"id"`
	DriverID        string    `json:"driver_id"`
	Days            int       `json:"days"`
	Reason          string    `json:"reason,omitempty"`
	FromCurrent     int       `json:"from_current"`
	FromTransferred int       `json:"from_transferred"`
	Remaining       int       `json:"remaining"`
	RequestedAt     time.Time `json:"requested_at"`
}

type LeaveRequestInput struct {
	DriverID string
	Days     int
	Reason   string
}

// AccrualSummary reports one accrual run.
type AccrualSummary struct {
	Period  string
	Accrued int
	Skipped int
	Failed  int
}
