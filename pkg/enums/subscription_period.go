package enums

import "fmt"

// SubscriptionPeriod is the billing period length of a subscription.
type SubscriptionPeriod string

const (
	SubscriptionPeriodTrial    SubscriptionPeriod = "trial"
	SubscriptionPeriodMonth1   SubscriptionPeriod = "month_1"
	SubscriptionPeriodMonths3  SubscriptionPeriod = "months_3"
	SubscriptionPeriodMonths12 SubscriptionPeriod = "months_12"
)

var validSubscriptionPeriods = []SubscriptionPeriod{
	SubscriptionPeriodTrial,
	SubscriptionPeriodMonth1,
	SubscriptionPeriodMonths3,
	SubscriptionPeriodMonths12,
}

// String implements fmt.Stringer.
func (p SubscriptionPeriod) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p SubscriptionPeriod) IsValid() bool {
	for _, candidate := range validSubscriptionPeriods {
		if candidate == p {
			return true
		}
	}
	return false
}

// Months returns the period length in months. The trial period counts as one
// month for end-date math; trial cancellation foreshortens it separately.
func (p SubscriptionPeriod) Months() int {
	switch p {
	case SubscriptionPeriodMonths3:
		return 3
	case SubscriptionPeriodMonths12:
		return 12
	default:
		return 1
	}
}

// ParseSubscriptionPeriod converts raw input into a SubscriptionPeriod.
func ParseSubscriptionPeriod(value string) (SubscriptionPeriod, error) {
	for _, candidate := range validSubscriptionPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription period %q", value)
}
