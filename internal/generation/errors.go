package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the generation service could not be reached or
	// returned an error status.
	ErrUnavailable = errors.New("generation service unavailable")

	// ErrParse matches every *ParseError.
	ErrParse = errors.New("generation response is not valid JSON")

	// ErrInvalidShape means the response parsed but lacks required fields.
	ErrInvalidShape = errors.New("generation response has invalid content shape")
)

// ParseError carries the raw and cleaned response text of a reply that did
// not parse as JSON.
type ParseError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse generation response: %v (cleaned: %.200q)", e.Err, e.Cleaned)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func shapeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidShape, fmt.Sprintf(format, args...))
}
