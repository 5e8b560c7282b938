package models

import (
	"errors"
	"fmt"
)

// Engine error kinds.
var (
	// ErrDefinition indicates a malformed workflow graph.
	ErrDefinition = errors.New("invalid workflow definition")

	// ErrHandler indicates a node failed while executing.
	ErrHandler = errors.New("node execution failed")

	// ErrDepthExceeded indicates sub-workflow nesting went past MaxSubWorkflowDepth.
	ErrDepthExceeded = errors.New("sub-workflow nesting depth exceeded")

	// ErrConcurrencyConflict indicates a status transition lost a compare-and-set.
	ErrConcurrencyConflict = errors.New("execution status conflict")
)

// MaxSubWorkflowDepth is the deepest allowed sub-workflow nesting level.
const MaxSubWorkflowDepth = 5

// DefinitionError describes why a workflow version cannot be interpreted.
type DefinitionError struct {
	WorkflowID string
	Version    int
	NodeID     string
	Reason     string
}

func (e *DefinitionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid workflow %s v%d: node %s: %s", e.WorkflowID, e.Version, e.NodeID, e.Reason)
	}

	return fmt.Sprintf("invalid workflow %s v%d: %s", e.WorkflowID, e.Version, e.Reason)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition
}

// HandlerError wraps the failure of a single node.
type HandlerError struct {
	NodeID   string
	NodeType NodeType
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func (e *HandlerError) Is(target error) bool {
	return target == ErrHandler
}

// NewHandlerError builds a HandlerError for the node.
func NewHandlerError(node *Node, err error) *HandlerError {
	return &HandlerError{NodeID: node.ID, NodeType: node.Type, Err: err}
}

// DepthExceededError is raised before entering a sub-workflow past the limit.
type DepthExceededError struct {
	NodeID   string
	Depth    int
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("sub-workflow node %s would enter depth %d (max %d)", e.NodeID, e.Depth, e.MaxDepth)
}

func (e *DepthExceededError) Is(target error) bool {
	return target == ErrDepthExceeded
}

// ConcurrencyConflictError is returned when the persisted status did not match.
type ConcurrencyConflictError struct {
	ExecutionID string
	Expected    ExecutionStatus
	Actual      ExecutionStatus
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("execution %s is %s, expected %s", e.ExecutionID, e.Actual, e.Expected)
}

func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// IsDefinitionError checks if an error is a DefinitionError.
func IsDefinitionError(err error) bool {
	return errors.Is(err, ErrDefinition)
}

// IsHandlerError checks if an error is a HandlerError.
func IsHandlerError(err error) bool {
	return errors.Is(err, ErrHandler)
}

// IsDepthExceeded checks if an error is a DepthExceededError.
func IsDepthExceeded(err error) bool {
	return errors.Is(err, ErrDepthExceeded)
}

// IsConcurrencyConflict checks if an error is a ConcurrencyConflictError.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
