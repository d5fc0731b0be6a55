package enums

import "fmt"

// RequestStatus tracks a user-initiated generation request end to end.
type RequestStatus string

const (
	RequestStatusStarted  RequestStatus = "started"
	RequestStatusFinished RequestStatus = "finished"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusStarted,
	RequestStatusFinished,
}

// String implements fmt.Stringer.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
