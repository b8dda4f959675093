// Package uuid generates and validates action identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// Parse parses s and requires it to be a version 4 UUID.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID: %w", err)
	}
	if id.Version() != 4 {
		return uuid.Nil, fmt.Errorf("expected UUID v4, got v%d", id.Version())
	}
	return id, nil
}

// IsValid reports whether s is a canonical UUID v4 string.
func IsValid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := Parse(s)
	return err == nil
}
