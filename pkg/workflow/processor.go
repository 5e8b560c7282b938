package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/otelhelper"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/variables"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds a single run or resume cycle when the version has no
// max_steps setting.
const DefaultMaxSteps = 1000

// DefaultGraphCacheSize is the number of compiled graphs a processor keeps.
const DefaultGraphCacheSize = 256

// ErrMaxSteps is raised when a cycle runs more steps than allowed.
var ErrMaxSteps = errors.New("step limit reached")

// HandlerSource resolves handlers by node type and validates node configs.
type HandlerSource interface {
	NodeValidator
	Handler(nodeType models.NodeType) (protocol.Handler, error)
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithTracer sets the tracer used for step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) { p.tracer = tracer }
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(p *Processor) { p.maxSteps = n }
}

// WithGraphCacheSize bounds the number of compiled graphs kept in memory.
func WithGraphCacheSize(n int) Option {
	return func(p *Processor) { p.graphCacheSize = n }
}

// WithClock sets the time source used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor interprets compiled graphs. It holds no per-execution state and
// may be shared across goroutines.
type Processor struct {
	handlers HandlerSource
	versions protocol.VersionSource
	logger   *slog.Logger
	tracer   trace.Tracer
	maxSteps int
	now      func() time.Time

	graphCacheSize int
	graphs         *lru.Cache[string, *Graph]
}

func NewProcessor(handlers HandlerSource, versions protocol.VersionSource, opts ...Option) *Processor {
	p := &Processor{
		handlers: handlers,
		versions: versions,
		logger:   slog.Default(),
		tracer:   otelhelper.NoopTracer(),
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.graphCacheSize <= 0 {
		p.graphCacheSize = DefaultGraphCacheSize
	}

	// lru.New only fails on a non-positive size.
	p.graphs, _ = lru.New[string, *Graph](p.graphCacheSize)

	return p
}

// Graph compiles a version once and caches it by workflow and version number.
// The least recently used graphs are evicted past the cache size.
func (p *Processor) Graph(version *models.WorkflowVersion) (*Graph, error) {
	key := fmt.Sprintf("%s@%d", version.WorkflowID, version.Version)
	if graph, ok := p.graphs.Get(key); ok {
		return graph, nil
	}

	graph, err := Compile(version, p.handlers)
	if err != nil {
		return nil, err
	}

	p.graphs.Add(key, graph)

	return graph, nil
}

// Validate compiles a version without caching it, for definitions that are
// not stored yet.
func (p *Processor) Validate(version *models.WorkflowVersion) error {
	_, err := Compile(version, p.handlers)

	return err
}

// Run interprets the graph starting at startNodeID until it completes, fails
// or suspends. The run's execution is updated to reflect the outcome.
func (p *Processor) Run(ctx context.Context, run *Run, startNodeID string) Outcome {
	if startNodeID == "" {
		startNodeID = run.Graph.EntryNodeID()
	}

	run.Execution.Status = models.ExecutionStatusRunning
	run.Execution.ClearWait()

	out := p.runFrame(ctx, p.topFrame(run), startNodeID, nil)
	p.apply(run, out)

	return out
}

// Resume delivers an event to the node the execution is waiting on and keeps
// interpreting from there.
func (p *Processor) Resume(ctx context.Context, run *Run, event models.ResumeEvent) Outcome {
	wait := models.WaitState{
		Type:     run.Execution.WaitType,
		Payload:  models.CloneMap(run.Execution.WaitPayload),
		Deadline: run.Execution.WaitDeadline,
	}

	run.Execution.Status = models.ExecutionStatusRunning
	run.Execution.ClearWait()

	out := p.runFrame(ctx, p.topFrame(run), run.Execution.CurrentNodeID, &resumeInput{wait: wait, event: event})
	p.apply(run, out)

	return out
}

func (p *Processor) topFrame(run *Run) *frame {
	return &frame{
		run:   run,
		graph: run.Graph,
		view:  variables.NewSessionView(run.Variables),
		depth: 0,
	}
}

func (p *Processor) apply(run *Run, out Outcome) {
	exec := run.Execution
	now := p.now().UTC()

	exec.UpdatedAt = now
	if out.NodeID != "" {
		exec.CurrentNodeID = out.NodeID
	}

	switch out.Status {
	case models.ExecutionStatusWaiting:
		exec.Status = models.ExecutionStatusWaiting
		exec.WaitType = out.Wait.Type
		exec.WaitPayload = out.Wait.Payload
		exec.WaitDeadline = out.Wait.Deadline
	case models.ExecutionStatusCompleted:
		exec.Status = models.ExecutionStatusCompleted
		exec.FinishedAt = &now
	default:
		exec.Status = models.ExecutionStatusFailed
		exec.FinishedAt = &now

		if out.Err != nil {
			exec.Error = out.Err.Error()
		}
	}
}

type frame struct {
	run   *Run
	graph *Graph
	view  variables.View
	depth int
}

type resumeInput struct {
	wait  models.WaitState
	event models.ResumeEvent
}

func (p *Processor) runFrame(ctx context.Context, f *frame, nodeID string, resume *resumeInput) Outcome {
	version := f.graph.Version()
	maxSteps := version.MaxSteps(p.maxSteps)

	for {
		node, err := f.graph.Node(nodeID)
		if err != nil {
			return Outcome{Status: models.ExecutionStatusFailed, NodeID: nodeID, Err: err}
		}

		if f.run.cycleSteps >= maxSteps {
			return Outcome{
				Status: models.ExecutionStatusFailed,
				NodeID: nodeID,
				Err:    models.NewHandlerError(node, fmt.Errorf("%w: %d steps in one cycle", ErrMaxSteps, maxSteps)),
			}
		}

		if f.depth == 0 {
			f.run.Execution.CurrentNodeID = nodeID
		}

		result, err := p.step(ctx, f, node, resume)
		resume = nil

		if err != nil {
			return Outcome{Status: models.ExecutionStatusFailed, NodeID: node.ID, Err: err}
		}

		switch result.Kind {
		case protocol.ResultSuspend:
			return Outcome{Status: models.ExecutionStatusWaiting, NodeID: node.ID, Wait: result.Wait}
		case protocol.ResultDone:
			return Outcome{Status: models.ExecutionStatusCompleted, NodeID: node.ID}
		}

		next, err := f.graph.Next(node.ID, result)
		if err != nil {
			return Outcome{Status: models.ExecutionStatusFailed, NodeID: node.ID, Err: err}
		}

		if next == "" {
			return Outcome{Status: models.ExecutionStatusCompleted, NodeID: node.ID}
		}

		nodeID = next
	}
}

// step runs one handler call and records exactly one log entry for it.
func (p *Processor) step(ctx context.Context, f *frame, node *models.Node, resume *resumeInput) (protocol.Result, error) {
	exec := f.run.Execution
	version := f.graph.Version()
	number := f.run.nextStep()

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "workflow.step",
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.String(otelhelper.WorkflowIDKey, version.WorkflowID),
		attribute.Int(otelhelper.WorkflowVersionKey, version.Version),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.Int(otelhelper.StepKey, number),
		attribute.Int(otelhelper.DepthKey, f.depth),
	)
	defer span.End()

	logger := p.logger.With(
		"execution_id", exec.ID,
		"workflow_id", version.WorkflowID,
		"node_id", node.ID,
		"step", number,
	)

	sc := &stepContext{processor: p, frame: f, step: number, logger: logger}
	before := f.view.Snapshot()
	started := p.now()

	result, err := p.invoke(ctx, node, sc, resume)
	if err == nil && result.Kind == protocol.ResultFail {
		err = result.Err
		if err == nil {
			err = errors.New("failed without error")
		}
	}

	if err != nil && !models.IsDepthExceeded(err) && !models.IsDefinitionError(err) {
		err = models.NewHandlerError(node, err)
	}

	finished := p.now()
	duration := finished.Sub(started).Milliseconds()

	entry := &models.LogEntry{
		ID:              uuid.New().String(),
		ExecutionID:     exec.ID,
		Step:            number,
		NodeID:          node.ID,
		NodeType:        node.Type,
		WorkflowID:      version.WorkflowID,
		Depth:           f.depth,
		Timestamp:       finished.UTC(),
		Level:           models.LogLevelInfo,
		InputData:       result.Input,
		OutputData:      result.Output,
		VariablesBefore: before,
		VariablesAfter:  f.view.Snapshot(),
		HTTPRequest:     result.HTTPReq,
		HTTPResponse:    result.HTTPResp,
		DurationMs:      &duration,
	}

	var outcome models.StepOutcome

	switch {
	case err != nil:
		outcome = models.OutcomeFailed
		entry.Level = models.LogLevelError
		entry.Message = fmt.Sprintf("Node %s failed: %v", node.ID, err)
		entry.Error = err.Error()

		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))
		logger.ErrorContext(ctx, "Node failed", "error", err)
	case result.Kind == protocol.ResultSuspend:
		outcome = models.OutcomeWaiting
		entry.Message = fmt.Sprintf("Node %s waiting for %s", node.ID, result.Wait.Type)
		entry.Data = map[string]any{"wait_type": string(result.Wait.Type)}
	case result.Skipped:
		outcome = models.OutcomeSkipped
		entry.Message = fmt.Sprintf("Node %s skipped", node.ID)
	case resume != nil:
		outcome = models.OutcomeResumed
		entry.Message = fmt.Sprintf("Node %s resumed by %s", node.ID, resume.event.Type)
	default:
		outcome = models.OutcomeCompleted
		entry.Message = fmt.Sprintf("Node %s completed", node.ID)
	}

	entry.Data = mergeData(entry.Data, map[string]any{models.OutcomeKey: string(outcome)})

	if result.Message != "" && err == nil {
		entry.Data = mergeData(entry.Data, map[string]any{"detail": result.Message})
	}

	span.SetAttributes(attribute.String(otelhelper.OutcomeKey, string(entry.Level)))
	logger.DebugContext(ctx, entry.Message, "duration_ms", duration)

	f.run.Logs = append(f.run.Logs, entry)

	return result, err
}

func (p *Processor) invoke(ctx context.Context, node *models.Node, sc *stepContext, resume *resumeInput) (protocol.Result, error) {
	handler, err := p.handlers.Handler(node.Type)
	if err != nil {
		return protocol.Result{}, &models.DefinitionError{
			WorkflowID: sc.frame.graph.Version().WorkflowID,
			Version:    sc.frame.graph.Version().Version,
			NodeID:     node.ID,
			Reason:     err.Error(),
		}
	}

	if resume == nil {
		return handler.Execute(ctx, node, sc)
	}

	resumer, ok := handler.(protocol.Resumer)
	if !ok {
		return protocol.Result{}, fmt.Errorf("node type %s cannot be resumed", node.Type)
	}

	return resumer.Resume(ctx, node, sc, resume.wait, resume.event)
}

func mergeData(base, extra map[string]any) map[string]any {
	if base == nil {
		return extra
	}

	for k, v := range extra {
		base[k] = v
	}

	return base
}

// RunSubflow runs a nested version as a frame of the same execution.
func (p *Processor) RunSubflow(
	ctx context.Context,
	sc protocol.StepContext,
	version *models.WorkflowVersion,
	seed map[string]any,
) (protocol.SubflowOutcome, error) {
	parent, err := p.ownFrame(sc)
	if err != nil {
		return protocol.SubflowOutcome{}, err
	}

	graph, err := p.Graph(version)
	if err != nil {
		return protocol.SubflowOutcome{}, err
	}

	child := &frame{
		run:   parent.run,
		graph: graph,
		view:  variables.NewFrameView(parent.run.Variables, seed),
		depth: parent.depth + 1,
	}

	return p.subflowOutcome(child, p.runFrame(ctx, child, graph.EntryNodeID(), nil)), nil
}

// ResumeSubflow re-enters a suspended nested frame.
func (p *Processor) ResumeSubflow(
	ctx context.Context,
	sc protocol.StepContext,
	nested *models.NestedFrame,
	event models.ResumeEvent,
) (protocol.SubflowOutcome, error) {
	parent, err := p.ownFrame(sc)
	if err != nil {
		return protocol.SubflowOutcome{}, err
	}

	version, err := p.versions.GetVersion(ctx, nested.WorkflowID, models.VersionNumber(nested.Version))
	if err != nil {
		return protocol.SubflowOutcome{}, fmt.Errorf("sub-workflow %s v%d unreachable: %w", nested.WorkflowID, nested.Version, err)
	}

	graph, err := p.Graph(version)
	if err != nil {
		return protocol.SubflowOutcome{}, err
	}

	child := &frame{
		run:   parent.run,
		graph: graph,
		view:  variables.NewFrameView(parent.run.Variables, nested.Variables),
		depth: parent.depth + 1,
	}

	out := p.runFrame(ctx, child, nested.NodeID, &resumeInput{wait: nested.Wait, event: event})

	return p.subflowOutcome(child, out), nil
}

func (p *Processor) ownFrame(sc protocol.StepContext) (*frame, error) {
	own, ok := sc.(*stepContext)
	if !ok || own.processor != p {
		return nil, errors.New("step context does not belong to this processor")
	}

	return own.frame, nil
}

func (p *Processor) subflowOutcome(child *frame, out Outcome) protocol.SubflowOutcome {
	outcome := protocol.SubflowOutcome{
		Status:    out.Status,
		Variables: child.view.Snapshot(),
		Err:       out.Err,
	}

	if out.Status == models.ExecutionStatusWaiting {
		outcome.Frame = &models.NestedFrame{
			WorkflowID: child.graph.Version().WorkflowID,
			Version:    child.graph.Version().Version,
			NodeID:     out.NodeID,
			Variables:  outcome.Variables,
			Wait:       *out.Wait,
		}
	}

	return outcome
}
