package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a stage transition is not declared in the definition
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrUnknownStage is returned when a stage is not part of the definition
	ErrUnknownStage = errors.New("unknown stage")

	// ErrMissingFields is returned when the data payload lacks fields required to enter a stage
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidDefinition is returned when a definition's stage graph is malformed
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)
