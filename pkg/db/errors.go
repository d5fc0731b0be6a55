package db

import "strings"

// Substrings both supported drivers emit on a duplicate key insert.
var uniqueViolationMarkers = []string{
	"duplicate key value",      // postgres
	"UNIQUE constraint failed", // sqlite
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// With a constraint name it matches that specific constraint, which lets
// callers map a known index to a domain conflict.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
