package enums

import "fmt"

// PackStatus tracks a one-off or recurring add-on purchase.
type PackStatus string

const (
	PackStatusWaiting  PackStatus = "waiting"
	PackStatusSuccess  PackStatus = "success"
	PackStatusDeclined PackStatus = "declined"
)

var validPackStatuses = []PackStatus{
	PackStatusWaiting,
	PackStatusSuccess,
	PackStatusDeclined,
}

// String implements fmt.Stringer.
func (s PackStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PackStatus) IsValid() bool {
	for _, candidate := range validPackStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePackStatus converts raw input into a PackStatus.
func ParsePackStatus(value string) (PackStatus, error) {
	for _, candidate := range validPackStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pack status %q", value)
}
