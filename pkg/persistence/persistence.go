// Package persistence provides the storage abstraction for executions, logs,
// variables and workflow versions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
)

type Persistence interface {
	Executions() ExecutionRepository
	Logs() LogRepository
	Variables() VariableRepository
	Versions() VersionRepository

	// Commit writes one cycle's execution row, variable diffs and new log
	// entries as a single unit. Nothing is written when the persisted status
	// differs from Commit.ExpectedStatus.
	Commit(ctx context.Context, commit *Commit) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Commit is the unit of mutation produced by a run or resume cycle.
type Commit struct {
	Execution      *models.Execution
	ExpectedStatus models.ExecutionStatus
	Variables      []models.VariableChange
	Logs           []*models.LogEntry
}

type ExecutionRepository interface {
	Create(ctx context.Context, exec *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)

	// CompareAndSetStatus moves an execution to next only when its persisted
	// status is one of expected. It returns the updated row, or a
	// *models.ConcurrencyConflictError carrying the actual status.
	CompareAndSetStatus(ctx context.Context, id string, next models.ExecutionStatus, expected ...models.ExecutionStatus) (*models.Execution, error)

	List(ctx context.Context, opts ListExecutionsOptions) (*ExecutionPage, error)
}

type LogRepository interface {
	// ListByExecution returns entries ordered by step then timestamp.
	ListByExecution(ctx context.Context, executionID string) ([]*models.LogEntry, error)
}

type VariableRepository interface {
	Get(ctx context.Context, scope models.Scope, ownerKey, key string) (*models.Variable, error)
	Set(ctx context.Context, variable *models.Variable) error
	Delete(ctx context.Context, scope models.Scope, ownerKey, key string) error
	ListByOwner(ctx context.Context, scope models.Scope, ownerKey string) ([]*models.Variable, error)
}

type VersionRepository interface {
	// Save stores a new version. When it is active every other version of the
	// workflow is deactivated.
	Save(ctx context.Context, version *models.WorkflowVersion) error
	Get(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error)
	GetActive(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
	List(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error)
	LatestNumber(ctx context.Context, workflowID string) (int, error)
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListExecutionsOptions filters and paginates execution listings. Zero values
// do not filter.
type ListExecutionsOptions struct {
	WorkflowID         string
	Statuses           []models.ExecutionStatus
	UserID             string
	SessionID          string
	From               *time.Time
	To                 *time.Time
	Search             string
	WaitDeadlineBefore *time.Time
	Page               int
	Limit              int
}

// Normalize applies pagination defaults and bounds.
func (o ListExecutionsOptions) Normalize() ListExecutionsOptions {
	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = DefaultPageLimit
	}

	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}

	return o
}

// Offset returns the number of items to skip.
func (o ListExecutionsOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// ExecutionPage is one page of execution summaries, newest first.
type ExecutionPage struct {
	Items []*models.Execution `json:"items"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}
