package llm

import "errors"

var (
	// ErrInvalidOutput indicates the model response could not be parsed
	// into the expected structured format.
	ErrInvalidOutput = errors.New("invalid llm output format")

	// ErrNoContent indicates the provider returned no candidates or choices.
	ErrNoContent = errors.New("no content generated")
)
