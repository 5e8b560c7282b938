// Package protocol defines the contract between the processor and node handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/variables"
)

// ResultKind tells the processor what to do after a step.
type ResultKind string

const (
	ResultNext    ResultKind = "next"
	ResultSuspend ResultKind = "suspend"
	ResultDone    ResultKind = "done"
	ResultFail    ResultKind = "fail"
)

// Result is returned by a handler for one step. Branch selects the outgoing
// connection; the untagged connection is used when no tagged one matches.
type Result struct {
	Kind       ResultKind
	Branch     string
	NextNodeID string
	Wait       *models.WaitState
	Err        error
	Skipped    bool
	Message    string
	Input      map[string]any
	Output     map[string]any
	HTTPReq    *models.HTTPCapture
	HTTPResp   *models.HTTPCapture
}

// Next continues through the connection tagged branch.
func Next(branch string) Result {
	return Result{Kind: ResultNext, Branch: branch}
}

// Goto continues at an explicit node.
func Goto(nodeID string) Result {
	return Result{Kind: ResultNext, NextNodeID: nodeID}
}

// Suspend stops the execution until a resume event arrives.
func Suspend(wait models.WaitState) Result {
	return Result{Kind: ResultSuspend, Wait: &wait}
}

// Done ends the execution as completed.
func Done() Result {
	return Result{Kind: ResultDone}
}

// Fail ends the execution as failed.
func Fail(err error) Result {
	return Result{Kind: ResultFail, Err: err}
}

// StepContext is what a handler sees of the running execution.
type StepContext interface {
	ExecutionID() string
	WorkflowID() string
	SessionID() string
	UserID() string
	ChatID() string
	ProjectID() string
	Depth() int
	Step() int
	Variables() variables.View
	Logger() *slog.Logger
	Subflows() SubflowRunner
}

// Handler executes one node type.
type Handler interface {
	Type() models.NodeType
	Execute(ctx context.Context, node *models.Node, sc StepContext) (Result, error)
}

// Resumer is implemented by handlers that can suspend. Resume is called on
// the suspended node with the wait state recorded for it.
type Resumer interface {
	Resume(ctx context.Context, node *models.Node, sc StepContext, wait models.WaitState, event models.ResumeEvent) (Result, error)
}

// Validator is implemented by handlers that check their config beyond struct
// tags when a version is compiled.
type Validator interface {
	Validate(node *models.Node) error
}

// SubflowOutcome is the result of running a nested workflow.
type SubflowOutcome struct {
	Status    models.ExecutionStatus
	Variables map[string]any
	Frame     *models.NestedFrame
	Err       error
}

// SubflowRunner runs nested workflows on behalf of the sub_workflow handler.
type SubflowRunner interface {
	RunSubflow(ctx context.Context, sc StepContext, version *models.WorkflowVersion, seed map[string]any) (SubflowOutcome, error)
	ResumeSubflow(ctx context.Context, sc StepContext, frame *models.NestedFrame, event models.ResumeEvent) (SubflowOutcome, error)
}

// HandlerFactory creates handlers and describes their node type.
type HandlerFactory interface {
	Create(deps Dependencies) (Handler, error)
	ID() models.NodeType
	Name() string
	Description() string
	Schema() map[string]any
}
