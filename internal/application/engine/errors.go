package engine

import "errors"

var (
	// ErrNotFound is returned when a workflow instance does not exist.
	// Callers treat this as a normal outcome and translate it into a
	// user-facing message.
	ErrNotFound = errors.New("workflow instance not found")

	// ErrInvalidState is returned when an action is attempted while the
	// instance is not in the expected stage; the message always names the
	// actual current stage.
	ErrInvalidState = errors.New("workflow instance is not in the expected stage")

	// ErrInstanceTerminal is returned when the instance has already
	// completed or been cancelled
	ErrInstanceTerminal = errors.New("workflow instance is terminal")

	// ErrDuplicateActive is returned when an active instance already
	// exists for the same (workflow_type, reference_id) pair
	ErrDuplicateActive = errors.New("active workflow already exists for reference")

	// ErrUnauthorized is returned when the caller's role does not satisfy
	// a stage-action's required role
	ErrUnauthorized = errors.New("caller is not authorized for this action")

	// ErrValidation is returned when a domain rule check fails
	ErrValidation = errors.New("validation failed")
)
