package enums

import "fmt"

// GenerationStatus tracks one unit of provider-side work under a request.
type GenerationStatus string

const (
	GenerationStatusStarted  GenerationStatus = "started"
	GenerationStatusFinished GenerationStatus = "finished"
)

var validGenerationStatuses = []GenerationStatus{
	GenerationStatusStarted,
	GenerationStatusFinished,
}

// String implements fmt.Stringer.
func (s GenerationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s GenerationStatus) IsValid() bool {
	for _, candidate := range validGenerationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGenerationStatus converts raw input into a GenerationStatus.
func ParseGenerationStatus(value string) (GenerationStatus, error) {
	for _, candidate := range validGenerationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid generation status %q", value)
}
