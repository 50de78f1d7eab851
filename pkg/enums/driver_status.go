package enums

import "fmt"

// DriverStatus marks whether a driver participates in leave accrual.
type DriverStatus string

const (
	DriverStatusActive   DriverStatus = "active"
	DriverStatusInactive DriverStatus = "inactive"
)

var validDriverStatuses = []DriverStatus{DriverStatusActive, DriverStatusInactive}

func (s DriverStatus) IsValid() bool {
	for _, candidate := range validDriverStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDriverStatus converts raw input into a DriverStatus.
func ParseDriverStatus(value string) (DriverStatus, error) {
	for _, candidate := range validDriverStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid driver status %q", value)
}
