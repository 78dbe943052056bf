package schema

import "fmt"

// FieldError reports a single output field failing validation.
type FieldError struct {
	// Field is the declared output field
	Field string

	// Reason describes the failure (missing, wrong type)
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("output field %q: %s", e.Field, e.Reason)
}
