package workflow

import (
	"log/slog"

	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/variables"
)

type stepContext struct {
	processor *Processor
	frame     *frame
	step      int
	logger    *slog.Logger
}

func (s *stepContext) ExecutionID() string { return s.frame.run.Execution.ID }

func (s *stepContext) WorkflowID() string { return s.frame.graph.Version().WorkflowID }

func (s *stepContext) SessionID() string { return s.frame.run.Execution.SessionID }

func (s *stepContext) UserID() string { return s.frame.run.Execution.UserID }

func (s *stepContext) ChatID() string { return s.frame.run.Execution.ChatID }

func (s *stepContext) ProjectID() string { return s.frame.run.Execution.ProjectID }

func (s *stepContext) Depth() int { return s.frame.depth }

func (s *stepContext) Step() int { return s.step }

func (s *stepContext) Variables() variables.View { return s.frame.view }

func (s *stepContext) Logger() *slog.Logger { return s.logger }

func (s *stepContext) Subflows() protocol.SubflowRunner { return s.processor }
