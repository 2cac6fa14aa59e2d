// Package uuid provides UUID v4 generation and validation for action IDs.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Strict canonical v4 form with dashes and correct variant bits; the
// permissive forms uuid.Parse accepts (no dashes, urn prefix) are not
// valid action IDs.
var v4Pattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a canonical UUID v4.
func IsValid(s string) bool {
	return v4Pattern.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4: %q", s)
	}
	return nil
}
