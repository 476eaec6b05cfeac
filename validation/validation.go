// Package validation contains custom validation functions for the application to use for input validation.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// TitleValidator is a validation function that checks if a title field is
// non-blank after trimming surrounding whitespace.
// It returns true if the field contains at least one non-space character.
func TitleValidator(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// SourceValidator is a validation function for the source query filter.
// Accepted values are "all", "external" and "local".
func SourceValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "all" || value == "external" || value == "local" {
		return true
	}
	return false
}
