package dataset

import (
	"errors"
	"fmt"
)

// Error classes. Every failure returned by this module wraps one of these, so
// callers match with errors.Is.
var (
	// ErrConfiguration marks malformed options: wrong shapes or types.
	ErrConfiguration = errors.New("configuration error")

	// ErrLoad marks structural problems while loading: missing or empty
	// version directories, versions that do not line up.
	ErrLoad = errors.New("load error")

	// ErrValidation marks illegal requests on a loaded collection: bad
	// destination names, type-incompatible operations, unknown enum values,
	// existing destinations without overwrite.
	ErrValidation = errors.New("validation error")
)

// Configurationf returns an error wrapping ErrConfiguration.
func Configurationf(format string, args ...any) error {
	return classed(ErrConfiguration, format, args...)
}

// Loadf returns an error wrapping ErrLoad.
func Loadf(format string, args ...any) error {
	return classed(ErrLoad, format, args...)
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return classed(ErrValidation, format, args...)
}

func classed(class error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", class, fmt.Sprintf(format, args...))
}
