package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request that is missing or malforms a
	// required field. No write happens when it is returned.
	ErrValidation = errors.New("clearner: validation failed")

	// ErrNotFound marks an explicitly required entity that does not
	// exist. Empty collections are not errors.
	ErrNotFound = errors.New("clearner: not found")

	// ErrDuplicateName is returned by the store when an insert loses
	// the display-name uniqueness race. Callers recover by lookup.
	ErrDuplicateName = errors.New("clearner: display name already exists")
)

// Validation wraps ErrValidation with the offending field name.
func Validation(field string) error {
	return fmt.Errorf("%w: missing or invalid %s", ErrValidation, field)
}
