package enums

// ChargeOutcome is the canonical result every provider payload is
// normalized into before the reconciler's decision table runs. Pending
// marks well-known intermediate provider states whose final event is
// still coming; Unknown marks statuses we cannot classify at all.
type ChargeOutcome string

const (
	ChargeOutcomeSucceeded ChargeOutcome = "succeeded"
	ChargeOutcomeDeclined  ChargeOutcome = "declined"
	ChargeOutcomePending   ChargeOutcome = "pending"
	ChargeOutcomeUnknown   ChargeOutcome = "unknown"
)

// String implements fmt.Stringer.
func (o ChargeOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is known.
func (o ChargeOutcome) IsValid() bool {
	switch o {
	case ChargeOutcomeSucceeded, ChargeOutcomeDeclined, ChargeOutcomePending, ChargeOutcomeUnknown:
		return true
	}
	return false
}
