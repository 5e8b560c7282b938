package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/execution"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/google/uuid"
)

// RestartRequest selects where and with which session a restart begins.
type RestartRequest struct {
	ExecutionID string
	FromNodeID  string

	// ResetVariables runs the new execution under a fresh session, so none
	// of the original session variables are visible. SessionID names that
	// session; one is generated when empty.
	ResetVariables bool
	SessionID      string

	// SkipCompleted starts from the node the original execution stopped at
	// when FromNodeID is empty, instead of from the entry node.
	SkipCompleted bool
}

// RestartResult identifies the execution created by a restart.
type RestartResult struct {
	NewExecutionID      string `json:"new_execution_id"`
	ParentExecutionID   string `json:"parent_execution_id"`
	RestartedFromNodeID string `json:"restarted_from_node_id"`
	SessionID           string `json:"session_id"`
}

// Restarts creates parent-linked executions and hands them to the workers
// through the event bus. The parent execution is never modified.
type Restarts struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	versions    protocol.VersionSource
	graphs      execution.GraphCompiler
	publisher   eventbus.EventPublisher
	now         func() time.Time
}

func NewRestarts(
	logger *slog.Logger,
	persistence persistence.Persistence,
	versions protocol.VersionSource,
	graphs execution.GraphCompiler,
	publisher eventbus.EventPublisher,
) *Restarts {
	return &Restarts{
		logger:      logger.With("module", "restart_controller"),
		persistence: persistence,
		versions:    versions,
		graphs:      graphs,
		publisher:   publisher,
		now:         time.Now,
	}
}

// Restart creates a new running execution linked to req.ExecutionID and
// dispatches it without waiting for it to run. When the dispatch cannot be
// published the new execution is marked failed and ErrDispatchFailed is
// returned together with the result.
func (r *Restarts) Restart(ctx context.Context, req RestartRequest) (*RestartResult, error) {
	const op = "restart"

	parent, err := r.persistence.Executions().GetByID(ctx, req.ExecutionID)
	if err != nil {
		return nil, wrap(op, err)
	}

	version, err := r.versions.GetVersion(ctx, parent.WorkflowID, models.VersionNumber(parent.Version))
	if err != nil {
		return nil, wrap(op, err)
	}

	graph, err := r.graphs.Graph(version)
	if err != nil {
		return nil, wrap(op, err)
	}

	from := req.FromNodeID
	if from == "" && req.SkipCompleted {
		from = parent.CurrentNodeID
	}

	if from == "" {
		from = graph.EntryNodeID()
	}

	if !graph.HasNode(from) {
		return nil, NewValidationError(op, fmt.Sprintf("node %s does not exist in %s v%d", from, version.WorkflowID, version.Version), ErrUnknownNode)
	}

	sessionID := parent.SessionID
	if req.ResetVariables {
		sessionID = req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
	}

	now := r.now().UTC()
	child := &models.Execution{
		ID:                  uuid.NewString(),
		WorkflowID:          parent.WorkflowID,
		Version:             parent.Version,
		ProjectID:           parent.ProjectID,
		SessionID:           sessionID,
		UserID:              parent.UserID,
		ChatID:              parent.ChatID,
		Status:              models.ExecutionStatusRunning,
		CurrentNodeID:       from,
		StartedAt:           now,
		UpdatedAt:           now,
		ParentExecutionID:   parent.ID,
		RestartedFromNodeID: from,
	}

	if err := r.persistence.Executions().Create(ctx, child); err != nil {
		return nil, wrap(op, fmt.Errorf("failed to create execution: %w", err))
	}

	result := &RestartResult{
		NewExecutionID:      child.ID,
		ParentExecutionID:   parent.ID,
		RestartedFromNodeID: from,
		SessionID:           sessionID,
	}

	event := &events.ExecutionDispatched{
		BaseEvent:         events.NewBaseEvent(events.ExecutionDispatchedEvent, child.WorkflowID),
		ExecutionID:       child.ID,
		ParentExecutionID: parent.ID,
		StartNodeID:       from,
	}

	if err := r.publisher.Publish(ctx, child.ID, event); err != nil {
		r.failDispatch(ctx, child, err)

		return result, &ServiceError{
			Op:      op,
			Code:    CodeInternal,
			Message: fmt.Sprintf("execution %s could not be dispatched: %v", child.ID, err),
			Err:     errors.Join(ErrDispatchFailed, err),
		}
	}

	r.logger.InfoContext(ctx, "Execution restarted",
		"execution_id", child.ID,
		"parent_execution_id", parent.ID,
		"node_id", from,
		"session_id", sessionID)

	return result, nil
}

func (r *Restarts) failDispatch(ctx context.Context, exec *models.Execution, cause error) {
	now := r.now().UTC()
	exec.Status = models.ExecutionStatusFailed
	exec.Error = fmt.Sprintf("%v: %v", ErrDispatchFailed, cause)
	exec.FinishedAt = &now
	exec.UpdatedAt = now

	err := r.persistence.Commit(ctx, &persistence.Commit{Execution: exec, ExpectedStatus: models.ExecutionStatusRunning})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark undispatched execution failed", "execution_id", exec.ID, "error", err)
	}
}
