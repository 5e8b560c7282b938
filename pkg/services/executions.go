package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/execution"
	"github.com/dukex/loyalflow/pkg/history"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/validation"
	"github.com/dukex/loyalflow/pkg/workflow"
	"github.com/google/uuid"
)

// Executions starts, resumes, inspects and cancels executions.
type Executions struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	versions    protocol.VersionSource
	processor   *workflow.Processor
	manager     *execution.Manager
	publisher   eventbus.EventPublisher
	now         func() time.Time
}

// NewExecutions creates the execution service. publisher may be nil, in which
// case no lifecycle events are emitted.
func NewExecutions(
	logger *slog.Logger,
	persistence persistence.Persistence,
	versions protocol.VersionSource,
	processor *workflow.Processor,
	publisher eventbus.EventPublisher,
) *Executions {
	return &Executions{
		logger:      logger.With("module", "executions_service"),
		persistence: persistence,
		versions:    versions,
		processor:   processor,
		manager:     execution.NewManager(logger, persistence, versions, processor),
		publisher:   publisher,
		now:         time.Now,
	}
}

// Manager returns the execution context manager the service persists through.
func (s *Executions) Manager() *execution.Manager {
	return s.manager
}

// StartRequest contains the input of a new execution.
type StartRequest struct {
	WorkflowID string
	Version    models.VersionRef
	SessionID  string
	UserID     string
	ChatID     string
	Variables  map[string]any
}

// Start creates an execution and runs it until it waits or terminates.
// Initial variables are written to session scope.
func (s *Executions) Start(ctx context.Context, req StartRequest) (*models.Execution, error) {
	const op = "start"

	if req.WorkflowID == "" {
		return nil, NewValidationError(op, "workflow id is required", ErrWorkflowIDRequired)
	}

	if req.SessionID == "" {
		return nil, NewValidationError(op, "session id is required", ErrSessionIDRequired)
	}

	version, err := s.versions.GetVersion(ctx, req.WorkflowID, req.Version)
	if err != nil {
		return nil, wrap(op, err)
	}

	if _, err := s.processor.Graph(version); err != nil {
		return nil, wrap(op, err)
	}

	if err := validation.ValidateJSONSchema(version.VariableSchema, req.Variables); err != nil {
		return nil, wrap(op, err)
	}

	now := s.now().UTC()
	exec := &models.Execution{
		ID:            uuid.NewString(),
		WorkflowID:    version.WorkflowID,
		Version:       version.Version,
		ProjectID:     version.ProjectID,
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		ChatID:        req.ChatID,
		Status:        models.ExecutionStatusRunning,
		CurrentNodeID: version.EntryNodeID,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.persistence.Executions().Create(ctx, exec); err != nil {
		return nil, wrap(op, fmt.Errorf("failed to create execution: %w", err))
	}

	c, err := s.manager.Open(ctx, exec)
	if err != nil {
		s.fail(ctx, exec, err)

		return nil, wrap(op, err)
	}

	for key, value := range req.Variables {
		c.Run.Variables.Set(models.ScopeSession, key, value)
	}

	s.logger.InfoContext(ctx, "Starting execution",
		"execution_id", exec.ID,
		"workflow_id", exec.WorkflowID,
		"version", exec.Version,
		"session_id", exec.SessionID)

	s.processor.Run(ctx, c.Run, "")

	return s.persist(ctx, op, c)
}

// Resume delivers event to a waiting execution. Executions that are not
// waiting, or that wait for another kind of event, are rejected unchanged.
func (s *Executions) Resume(ctx context.Context, executionID string, event models.ResumeEvent) (*models.Execution, error) {
	const op = "resume"

	c, err := s.manager.ClaimForResume(ctx, executionID, event.Type)
	if err != nil {
		return nil, wrap(op, err)
	}

	s.logger.InfoContext(ctx, "Resuming execution",
		"execution_id", executionID,
		"node_id", c.Execution().CurrentNodeID,
		"event", event.Type)

	s.processor.Resume(ctx, c.Run, event)

	return s.persist(ctx, op, c)
}

func (s *Executions) persist(ctx context.Context, op string, c *execution.Context) (*models.Execution, error) {
	exec := c.Execution()

	if err := s.manager.Persist(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist execution", "execution_id", exec.ID, "error", err)

		if !models.IsConcurrencyConflict(err) {
			s.manager.Abandon(ctx, exec.ID, err)
		}

		return nil, wrap(op, err)
	}

	if exec.Status == models.ExecutionStatusFailed {
		s.logger.WarnContext(ctx, "Execution failed", "execution_id", exec.ID, "node_id", exec.CurrentNodeID, "error", exec.Error)
	}

	publishLifecycle(ctx, s.logger, s.publisher, exec)

	return exec, nil
}

// fail records a failure that happened before the first cycle could run.
func (s *Executions) fail(ctx context.Context, exec *models.Execution, cause error) {
	now := s.now().UTC()
	exec.Status = models.ExecutionStatusFailed
	exec.Error = cause.Error()
	exec.FinishedAt = &now
	exec.UpdatedAt = now

	err := s.persistence.Commit(ctx, &persistence.Commit{Execution: exec, ExpectedStatus: models.ExecutionStatusRunning})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark execution failed", "execution_id", exec.ID, "error", err)

		return
	}

	publishLifecycle(ctx, s.logger, s.publisher, exec)
}

// ExecutionDetails is the observability view of one execution.
type ExecutionDetails struct {
	Execution        *models.Execution               `json:"execution"`
	Steps            []*history.StepView             `json:"steps"`
	VariablesByScope map[models.Scope]map[string]any `json:"variables_by_scope"`
	WaitPayload      map[string]any                  `json:"wait_payload,omitempty"`
}

// Get returns an execution with its aggregated step history and the
// variables it can address.
func (s *Executions) Get(ctx context.Context, executionID string) (*ExecutionDetails, error) {
	const op = "get_execution"

	exec, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, wrap(op, err)
	}

	logs, err := s.persistence.Logs().ListByExecution(ctx, executionID)
	if err != nil {
		return nil, wrap(op, err)
	}

	vars, err := s.manager.LoadVariables(ctx, execution.OwnersOf(exec))
	if err != nil {
		return nil, wrap(op, err)
	}

	byScope := make(map[models.Scope]map[string]any, len(models.ScopeFallbackChain))
	for _, scope := range models.ScopeFallbackChain {
		byScope[scope] = map[string]any{}
	}

	for _, v := range vars {
		byScope[v.Scope][v.Key] = v.Value
	}

	return &ExecutionDetails{
		Execution:        exec,
		Steps:            history.Aggregate(logs),
		VariablesByScope: byScope,
		WaitPayload:      exec.WaitPayload,
	}, nil
}

// List returns a page of executions of a workflow, newest first.
func (s *Executions) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionPage, error) {
	if opts.WorkflowID == "" {
		return nil, NewValidationError("list_executions", "workflow id is required", ErrWorkflowIDRequired)
	}

	page, err := s.persistence.Executions().List(ctx, opts)

	return page, wrap("list_executions", err)
}

// Cancel moves a running or waiting execution to cancelled. A step already
// in flight is not interrupted.
func (s *Executions) Cancel(ctx context.Context, executionID string) (*models.Execution, error) {
	exec, err := s.persistence.Executions().CompareAndSetStatus(ctx, executionID, models.ExecutionStatusCancelled,
		models.ExecutionStatusRunning, models.ExecutionStatusWaiting)
	if err != nil {
		return nil, wrap("cancel", err)
	}

	s.logger.InfoContext(ctx, "Execution cancelled", "execution_id", exec.ID)

	publishLifecycle(ctx, s.logger, s.publisher, exec)

	return exec, nil
}

// publishLifecycle announces the status an execution was persisted with.
// Publish failures are logged only; the persisted row stays authoritative.
func publishLifecycle(ctx context.Context, logger *slog.Logger, publisher eventbus.EventPublisher, exec *models.Execution) {
	if publisher == nil {
		return
	}

	event := events.Lifecycle(exec)
	if event == nil {
		return
	}

	if err := publisher.Publish(ctx, exec.ID, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"execution_id", exec.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}
