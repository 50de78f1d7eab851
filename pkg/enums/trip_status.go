package enums

import "fmt"

// TripStatus is the sub-status of an active trip.
type TripStatus string

const (
	TripStatusDelivering    TripStatus = "delivering"
	TripStatusReturning     TripStatus = "returning"
	TripStatusNotApplicable TripStatus = "not_applicable"
)

var validTripStatuses = []TripStatus{
	TripStatusDelivering,
	TripStatusReturning,
	TripStatusNotApplicable,
}

func (s TripStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TripStatus.
func (s TripStatus) IsValid() bool {
	for _, candidate := range validTripStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActiveSubStatus reports whether the status may accompany an active trip.
func (s TripStatus) IsActiveSubStatus() bool {
	return s == TripStatusDelivering || s == TripStatusReturning
}

// ParseTripStatus converts raw input into a TripStatus.
func ParseTripStatus(value string) (TripStatus, error) {
	for _, candidate := range validTripStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trip status %q", value)
}
