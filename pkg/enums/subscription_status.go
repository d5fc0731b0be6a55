package enums

import "fmt"

// SubscriptionStatus tracks the lifecycle of one paid entitlement period.
type SubscriptionStatus string

const (
	SubscriptionStatusWaiting  SubscriptionStatus = "waiting"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusFinished SubscriptionStatus = "finished"
	SubscriptionStatusDeclined SubscriptionStatus = "declined"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusWaiting,
	SubscriptionStatusActive,
	SubscriptionStatusTrial,
	SubscriptionStatusCanceled,
	SubscriptionStatusFinished,
	SubscriptionStatusDeclined,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCurrent reports whether the subscription still grants entitlements.
// Canceled periods keep granting until their end date passes.
func (s SubscriptionStatus) IsCurrent() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrial || s == SubscriptionStatusCanceled
}

// IsTerminal reports whether the status permits no further transitions.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusFinished || s == SubscriptionStatusDeclined
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
