package validate

import "fmt"

// Error reports a malformed or missing input field. Handlers surface the
// field name to the caller alongside a 400 status.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation: field %q %s", e.Field, e.Reason)
}

// Errorf builds a field validation error with a formatted reason.
func Errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}
