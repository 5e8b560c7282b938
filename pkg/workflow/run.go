package workflow

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/variables"
)

// Run is the mutable state of one run or resume cycle. The processor updates
// Execution in place and appends to Logs; the caller persists both.
type Run struct {
	Execution *models.Execution
	Graph     *Graph
	Variables *variables.WorkingSet
	Logs      []*models.LogEntry

	cycleSteps int
}

// NewRun prepares a cycle for an execution.
func NewRun(exec *models.Execution, graph *Graph, vars *variables.WorkingSet) *Run {
	return &Run{
		Execution: exec,
		Graph:     graph,
		Variables: vars,
	}
}

// CycleSteps returns how many steps ran in this cycle.
func (r *Run) CycleSteps() int {
	return r.cycleSteps
}

func (r *Run) nextStep() int {
	r.cycleSteps++
	r.Execution.StepCount++

	return r.Execution.StepCount
}

// Outcome is how a cycle ended.
type Outcome struct {
	Status models.ExecutionStatus
	NodeID string
	Wait   *models.WaitState
	Err    error
}
