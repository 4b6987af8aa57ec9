package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad caller input. Wrapped errors carry the reason.
	ErrValidation = errors.New("validation failed")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrResultsUnavailable is returned when a known job has no previewable
	// results: it is still running, failed, or was a live run.
	ErrResultsUnavailable = errors.New("results not available")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
