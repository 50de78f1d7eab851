package enums

import "fmt"

// TripType is the top-level lifecycle state of a trip.
type TripType string

const (
	TripTypeReadyToShip TripType = "ready_to_ship"
	TripTypeActive      TripType = "active"
	TripTypePast        TripType = "past"
)

var validTripTypes = []TripType{
	TripTypeReadyToShip,
	TripTypeActive,
	TripTypePast,
}

// String implements fmt.Stringer.
func (t TripType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TripType.
func (t TripType) IsValid() bool {
	for _, candidate := range validTripTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTripType converts raw input into a TripType.
func ParseTripType(value string) (TripType, error) {
	for _, candidate := range validTripTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trip type %q", value)
}
