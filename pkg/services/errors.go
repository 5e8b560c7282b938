// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/loyalflow/pkg/execution"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/validation"
)

// Error codes carried by ServiceError.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeDefinition = "definition_error"
	CodeInternal   = "internal_error"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrWorkflowIDRequired = errors.New("workflow id is required")
	ErrSessionIDRequired  = errors.New("session id is required")
	ErrUnknownNode        = errors.New("node does not exist in the workflow version")

	// Dispatch failures (500 Internal Server Error).
	ErrDispatchFailed = errors.New("failed to dispatch execution")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowIDRequired) ||
		errors.Is(err, ErrSessionIDRequired) ||
		errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, validation.ErrSchemaViolation)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return models.IsConcurrencyConflict(err) ||
		errors.Is(err, execution.ErrEventMismatch) ||
		errors.Is(err, persistence.ErrExecutionExists) ||
		errors.Is(err, persistence.ErrVersionExists)
}

// CodeOf returns the error code of err, classifying errors that were not
// wrapped by the service layer.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return serviceErr.Code
	}

	switch {
	case IsValidationError(err):
		return CodeValidation
	case persistence.IsNotFound(err):
		return CodeNotFound
	case IsConflictError(err):
		return CodeConflict
	case models.IsDefinitionError(err), models.IsDepthExceeded(err):
		return CodeDefinition
	default:
		return CodeInternal
	}
}

// wrap attaches the operation and its classified code to err.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}

	return &ServiceError{Op: op, Code: CodeOf(err), Err: err}
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    CodeValidation,
		Message: message,
		Err:     err,
	}
}
