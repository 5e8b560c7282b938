package testutil

import (
	"log/slog"

	lflog "github.com/dukex/loyalflow/pkg/log"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/variables"
)

// StepContext is a protocol.StepContext over an in-memory working set, for
// exercising node handlers without a processor.
type StepContext struct {
	Execution *models.Execution
	Vars      *variables.WorkingSet
	Runner    protocol.SubflowRunner
	StepNo    int
	Level     int
	Log       *slog.Logger
}

// NewStepContext builds a step context for a fresh execution of workflowID
// with the given session variables.
func NewStepContext(workflowID string, session map[string]any) *StepContext {
	exec := CreateTestExecution(CreateTestVersion(workflowID, ""), "session-1")
	exec.ChatID = "chat-1"

	owners := variables.Owners{SessionID: exec.SessionID, UserID: exec.UserID, ProjectID: exec.ProjectID}
	ws := variables.NewWorkingSet(owners, nil)

	for k, v := range session {
		ws.Set(models.ScopeSession, k, v)
	}

	return &StepContext{Execution: exec, Vars: ws, StepNo: 1, Log: lflog.Discard()}
}

func (s *StepContext) ExecutionID() string { return s.Execution.ID }

func (s *StepContext) WorkflowID() string { return s.Execution.WorkflowID }

func (s *StepContext) SessionID() string { return s.Execution.SessionID }

func (s *StepContext) UserID() string { return s.Execution.UserID }

func (s *StepContext) ChatID() string { return s.Execution.ChatID }

func (s *StepContext) ProjectID() string { return s.Execution.ProjectID }

func (s *StepContext) Depth() int { return s.Level }

func (s *StepContext) Step() int { return s.StepNo }

func (s *StepContext) Variables() variables.View { return variables.NewSessionView(s.Vars) }

func (s *StepContext) Logger() *slog.Logger { return s.Log }

func (s *StepContext) Subflows() protocol.SubflowRunner { return s.Runner }

// Session returns the session value stored under key.
func (s *StepContext) Session(key string) (any, bool) {
	return s.Vars.Get(models.ScopeSession, key)
}
