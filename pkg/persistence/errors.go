package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates no execution exists with the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionExists indicates an execution with the same id was already created.
	ErrExecutionExists = errors.New("execution already exists")

	// ErrVersionNotFound indicates the requested workflow version does not exist.
	ErrVersionNotFound = errors.New("workflow version not found")

	// ErrVersionExists indicates the version number is already taken.
	ErrVersionExists = errors.New("workflow version already exists")

	// ErrVariableNotFound indicates the variable is not set.
	ErrVariableNotFound = errors.New("variable not found")
)

// NotFoundError adds the lookup that failed to a not-found sentinel.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// ExecutionNotFound builds the error for a missing execution.
func ExecutionNotFound(id string) error {
	return &NotFoundError{Kind: "execution", ID: id, Err: ErrExecutionNotFound}
}

// VersionNotFound builds the error for a missing version.
func VersionNotFound(workflowID string, ref any) error {
	return &NotFoundError{Kind: "workflow", ID: fmt.Sprintf("%s@%v", workflowID, ref), Err: ErrVersionNotFound}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrVariableNotFound)
}
