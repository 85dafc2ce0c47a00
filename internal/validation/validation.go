package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLength bounds child and catalog item names.
	MaxNameLength = 100
	// MaxPoints bounds the magnitude of a catalog item's points.
	MaxPoints = 1_000_000
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateName checks that a name is present and not absurdly long.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ValidationError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", MaxNameLength)}
	}
	return nil
}

// ValidatePoints rejects zero and magnitudes above MaxPoints. The sign is
// normalized by the caller according to the item type.
func ValidatePoints(points int) error {
	if points == 0 {
		return ValidationError{Field: "points", Message: "points must not be zero"}
	}
	if points > MaxPoints || points < -MaxPoints {
		return ValidationError{Field: "points", Message: fmt.Sprintf("points must be between -%d and %d", MaxPoints, MaxPoints)}
	}
	return nil
}

// ValidateID checks that an identifier was supplied.
func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	return nil
}
