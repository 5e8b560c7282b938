// Package execution loads and persists the state of one run or resume cycle.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/variables"
	"github.com/dukex/loyalflow/pkg/workflow"
)

// ErrEventMismatch is returned when a resume event does not fit the wait type.
var ErrEventMismatch = errors.New("resume event does not match wait type")

// GraphCompiler returns the compiled graph of a version.
type GraphCompiler interface {
	Graph(version *models.WorkflowVersion) (*workflow.Graph, error)
}

// Context is the in-memory working state of one cycle.
type Context struct {
	Version *models.WorkflowVersion
	Run     *workflow.Run
}

// Execution returns the execution being processed.
func (c *Context) Execution() *models.Execution {
	return c.Run.Execution
}

// Manager loads executions with their variables and persists each cycle as a
// single commit.
type Manager struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	versions    protocol.VersionSource
	graphs      GraphCompiler
}

func NewManager(
	logger *slog.Logger,
	persistence persistence.Persistence,
	versions protocol.VersionSource,
	graphs GraphCompiler,
) *Manager {
	return &Manager{
		logger:      logger.With("module", "execution_manager"),
		persistence: persistence,
		versions:    versions,
		graphs:      graphs,
	}
}

// Open builds the context of an execution that is already loaded.
func (m *Manager) Open(ctx context.Context, exec *models.Execution) (*Context, error) {
	version, err := m.versions.GetVersion(ctx, exec.WorkflowID, models.VersionNumber(exec.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to load version %d of workflow %s: %w", exec.Version, exec.WorkflowID, err)
	}

	graph, err := m.graphs.Graph(version)
	if err != nil {
		return nil, err
	}

	owners := OwnersOf(exec)

	loaded, err := m.LoadVariables(ctx, owners)
	if err != nil {
		return nil, err
	}

	return &Context{
		Version: version,
		Run:     workflow.NewRun(exec, graph, variables.NewWorkingSet(owners, loaded)),
	}, nil
}

// Load reads a running execution and opens its context.
func (m *Manager) Load(ctx context.Context, executionID string) (*Context, error) {
	exec, err := m.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if exec.Status != models.ExecutionStatusRunning {
		return nil, &models.ConcurrencyConflictError{
			ExecutionID: exec.ID,
			Expected:    models.ExecutionStatusRunning,
			Actual:      exec.Status,
		}
	}

	return m.Open(ctx, exec)
}

// ClaimForResume moves a waiting execution to running and opens its context.
// Only one caller can win the transition; the others get a
// ConcurrencyConflictError and nothing is written.
func (m *Manager) ClaimForResume(ctx context.Context, executionID string, event models.ResumeEventType) (*Context, error) {
	exec, err := m.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if exec.Status != models.ExecutionStatusWaiting {
		return nil, &models.ConcurrencyConflictError{
			ExecutionID: exec.ID,
			Expected:    models.ExecutionStatusWaiting,
			Actual:      exec.Status,
		}
	}

	if !exec.WaitType.Accepts(event) {
		return nil, fmt.Errorf("%w: execution %s waits for %s, got %s", ErrEventMismatch, exec.ID, exec.WaitType, event)
	}

	claimed, err := m.persistence.Executions().CompareAndSetStatus(ctx, executionID,
		models.ExecutionStatusRunning, models.ExecutionStatusWaiting)
	if err != nil {
		return nil, err
	}

	c, err := m.Open(ctx, claimed)
	if err != nil {
		m.release(ctx, claimed, err)

		return nil, err
	}

	return c, nil
}

// Abandon fails an execution left running by a cycle whose commit did not
// go through. The persisted row is failed as it was before the cycle, so no
// step of the lost cycle is recorded.
func (m *Manager) Abandon(ctx context.Context, executionID string, cause error) {
	current, err := m.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load abandoned execution", "execution_id", executionID, "error", err)

		return
	}

	if current.Status != models.ExecutionStatusRunning {
		return
	}

	m.release(ctx, current, fmt.Errorf("cycle could not be persisted: %w", cause))
}

// release fails an execution claimed for a cycle that could not be opened.
func (m *Manager) release(ctx context.Context, exec *models.Execution, cause error) {
	now := time.Now().UTC()
	exec.Status = models.ExecutionStatusFailed
	exec.Error = cause.Error()
	exec.FinishedAt = &now
	exec.UpdatedAt = now
	exec.ClearWait()

	err := m.persistence.Commit(ctx, &persistence.Commit{Execution: exec, ExpectedStatus: models.ExecutionStatusRunning})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to release claimed execution", "execution_id", exec.ID, "error", err)
	}
}

// Persist commits the execution row, variable diffs and new log entries of
// the cycle. When the execution was cancelled while the cycle ran, the
// cancelled status is kept and the rest of the cycle is still recorded.
func (m *Manager) Persist(ctx context.Context, c *Context) error {
	run := c.Run
	commit := &persistence.Commit{
		Execution:      run.Execution,
		ExpectedStatus: models.ExecutionStatusRunning,
		Variables:      run.Variables.Changes(),
		Logs:           run.Logs,
	}

	err := m.persistence.Commit(ctx, commit)
	if err == nil {
		m.logger.DebugContext(ctx, "Persisted cycle",
			"execution_id", run.Execution.ID,
			"status", run.Execution.Status,
			"steps", run.CycleSteps())

		return nil
	}

	var conflict *models.ConcurrencyConflictError
	if !errors.As(err, &conflict) || conflict.Actual != models.ExecutionStatusCancelled {
		return err
	}

	current, getErr := m.persistence.Executions().GetByID(ctx, run.Execution.ID)
	if getErr != nil {
		return getErr
	}

	run.Execution.Status = models.ExecutionStatusCancelled
	run.Execution.FinishedAt = current.FinishedAt
	run.Execution.ClearWait()
	commit.ExpectedStatus = models.ExecutionStatusCancelled

	m.logger.InfoContext(ctx, "Execution was cancelled during the cycle",
		"execution_id", run.Execution.ID,
		"steps", run.CycleSteps())

	return m.persistence.Commit(ctx, commit)
}

// LoadVariables reads every variable addressable by the owners.
func (m *Manager) LoadVariables(ctx context.Context, owners variables.Owners) ([]*models.Variable, error) {
	var loaded []*models.Variable

	for _, scope := range models.ScopeFallbackChain {
		owner, ok := owners.Key(scope)
		if !ok {
			continue
		}

		vars, err := m.persistence.Variables().ListByOwner(ctx, scope, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s variables: %w", scope, err)
		}

		loaded = append(loaded, vars...)
	}

	return loaded, nil
}

// OwnersOf returns the variable owners addressed by an execution.
func OwnersOf(exec *models.Execution) variables.Owners {
	return variables.Owners{
		SessionID: exec.SessionID,
		UserID:    exec.UserID,
		ProjectID: exec.ProjectID,
	}
}
