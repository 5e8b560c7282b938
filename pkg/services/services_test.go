package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dukex/loyalflow/pkg/dispatch"
	"github.com/dukex/loyalflow/pkg/eventbus"
	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/log"
	"github.com/dukex/loyalflow/pkg/mocks"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/persistence/file"
	"github.com/dukex/loyalflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.GetType())
	}

	return out
}

func (r *recorder) dispatched(t *testing.T) *events.ExecutionDispatched {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if e, ok := r.events[i].(*events.ExecutionDispatched); ok {
			return e
		}
	}

	t.Fatal("no dispatch event published")

	return nil
}

type fixture struct {
	store      *file.Persistence
	messenger  *testutil.Messenger
	bus        *recorder
	publishing *Publishing
	executions *Executions
	restarts   *Restarts
	runner     *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	versions := persistence.NewVersionSource(store.Versions())
	messenger := &testutil.Messenger{}

	processor, err := testutil.NewProcessor(log.Discard(), versions, messenger, testutil.OKClient)
	require.NoError(t, err)

	bus := &recorder{}
	executions := NewExecutions(log.Discard(), store, versions, processor, bus)

	return &fixture{
		store:      store,
		messenger:  messenger,
		bus:        bus,
		publishing: NewPublishing(log.Discard(), store.Versions(), processor),
		executions: executions,
		restarts:   NewRestarts(log.Discard(), store, versions, processor, bus),
		runner:     NewRunner(log.Discard(), executions.Manager(), processor, dispatch.NewMemoryClaimer(dispatch.DefaultClaimTTL), bus),
	}
}

func (f *fixture) publish(t *testing.T, draft *models.WorkflowVersion) *models.WorkflowVersion {
	t.Helper()

	version, err := f.publishing.Publish(t.Context(), draft.WorkflowID, draft)
	require.NoError(t, err)

	return version
}

// loyaltyFlow is M -> C(step == 3) -> true: T, false: W -> C.
func loyaltyFlow() *models.WorkflowVersion {
	return testutil.CreateTestVersion("loyalty", "M",
		testutil.WithNodes(
			testutil.MessageNode("M", "Welcome to the bonus program"),
			testutil.ConditionNode("C", testutil.Where("step", models.OpEquals, 3)),
			testutil.WaitNode("W", models.WaitTypeMessage, "answer"),
			testutil.TerminalNode("T"),
		),
		testutil.WithEdge("M", "C"),
		testutil.WithEdge("C", "T", models.BranchTrue),
		testutil.WithEdge("C", "W", models.BranchFalse),
		testutil.WithEdge("W", "C"),
	)
}

func assertContiguous(t *testing.T, details *ExecutionDetails) {
	t.Helper()

	require.Len(t, details.Steps, details.Execution.StepCount)

	for i, step := range details.Steps {
		assert.Equal(t, i+1, step.Step)
	}
}

func TestExecutions_StartWaitsAndResumeCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, exec.Status)
	assert.Equal(t, "W", exec.CurrentNodeID)
	assert.Equal(t, models.WaitTypeMessage, exec.WaitType)
	assert.Equal(t, []string{"Welcome to the bonus program"}, f.messenger.Texts())

	exec, err = f.executions.Resume(ctx, exec.ID, models.ResumeEvent{
		Type:      models.ResumeEventMessage,
		Text:      "ready",
		Variables: map[string]any{"step": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, "T", exec.CurrentNodeID)
	assert.NotNil(t, exec.FinishedAt)

	details, err := f.executions.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, details.Execution.StepCount)
	assertContiguous(t, details)
	assert.Equal(t, "W", details.Steps[3].NodeID)
	assert.EqualValues(t, 3, details.VariablesByScope[models.ScopeSession]["step"])
	assert.Equal(t, "ready", details.VariablesByScope[models.ScopeSession]["answer"])
	assert.Empty(t, details.WaitPayload)

	assert.Equal(t, []events.EventType{events.ExecutionWaitingEvent, events.ExecutionCompletedEvent}, f.bus.types())
}

func TestExecutions_ResumeRejectionsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	_, err = f.executions.Resume(ctx, exec.ID, models.ResumeEvent{Type: models.ResumeEventCallback, CallbackData: "yes"})
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))

	_, err = f.executions.Resume(ctx, "missing", models.ResumeEvent{Type: models.ResumeEventMessage})
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	stored, err := f.store.Executions().GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, stored.Status)
	assert.Equal(t, 3, stored.StepCount)

	_, err = f.executions.Resume(ctx, exec.ID, models.ResumeEvent{Type: models.ResumeEventMessage, Variables: map[string]any{"step": 3}})
	require.NoError(t, err)

	_, err = f.executions.Resume(ctx, exec.ID, models.ResumeEvent{Type: models.ResumeEventMessage})
	require.Error(t, err)
	assert.True(t, models.IsConcurrencyConflict(err))

	logs, err := f.store.Logs().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 6)
}

// failingCycles returns a persistence over store whose cycle commits (the ones
// carrying step logs) fail.
func failingCycles(store *file.Persistence, cause error) *mocks.MockPersistence {
	p := &mocks.MockPersistence{}
	p.On("Executions").Return(store.Executions()).Maybe()
	p.On("Logs").Return(store.Logs()).Maybe()
	p.On("Variables").Return(store.Variables()).Maybe()
	p.On("Versions").Return(store.Versions()).Maybe()
	p.On("Commit", mock.Anything, mock.MatchedBy(func(c *persistence.Commit) bool { return len(c.Logs) > 0 })).
		Return(cause)
	p.On("Commit", mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			_ = store.Commit(args.Get(0).(context.Context), args.Get(1).(*persistence.Commit))
		})

	return p
}

func TestExecutions_FailedCommitReleasesClaimedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	versions := persistence.NewVersionSource(f.store.Versions())
	processor, err := testutil.NewProcessor(log.Discard(), versions, f.messenger, testutil.OKClient)
	require.NoError(t, err)

	store := failingCycles(f.store, errors.New("disk full"))
	executions := NewExecutions(log.Discard(), store, versions, processor, f.bus)

	_, err = executions.Resume(ctx, exec.ID, models.ResumeEvent{Type: models.ResumeEventMessage, Variables: map[string]any{"step": 3}})
	require.Error(t, err)

	stored, err := f.store.Executions().GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "disk full")
	assert.Equal(t, 3, stored.StepCount)
	assert.NotNil(t, stored.FinishedAt)

	logs, err := f.store.Logs().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	_, err = f.executions.Resume(ctx, exec.ID, models.ResumeEvent{Type: models.ResumeEventMessage})
	require.Error(t, err)
	assert.True(t, models.IsConcurrencyConflict(err))

	started, err := executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-2"})
	require.Error(t, err)
	assert.Nil(t, started)

	page, err := f.store.Executions().List(ctx, persistence.ListExecutionsOptions{SessionID: "session-2"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, models.ExecutionStatusFailed, page.Items[0].Status)
}

func TestExecutions_ConcurrentResumeHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)

	for range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.executions.Resume(ctx, exec.ID, models.ResumeEvent{
				Type:      models.ResumeEventMessage,
				Variables: map[string]any{"step": 3},
			})

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				winners++
			} else if models.IsConcurrencyConflict(err) {
				conflicts++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 5, conflicts)
}

func TestExecutions_IncrementTwiceFromUndefined(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	increment := &models.SessionOpConfig{Operation: models.SessionOpIncrement, Key: "counter", Amount: testutil.Amount(1)}
	f.publish(t, testutil.CreateTestVersion("counter", "S1",
		testutil.WithNodes(
			testutil.SessionOpNode("S1", increment),
			testutil.SessionOpNode("S2", increment),
			testutil.TerminalNode("T"),
		),
		testutil.WithEdge("S1", "S2"),
		testutil.WithEdge("S2", "T"),
	))

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "counter", SessionID: "session-1"})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusCompleted, exec.Status)

	details, err := f.executions.Get(ctx, exec.ID)
	require.NoError(t, err)
	assertContiguous(t, details)
	assert.EqualValues(t, 2, details.VariablesByScope[models.ScopeSession]["counter"])

	first, second := details.Steps[0], details.Steps[1]
	assert.NotContains(t, first.VariablesBefore, "counter")
	assert.EqualValues(t, 1, first.VariablesAfter["counter"])
	assert.EqualValues(t, 1, second.VariablesBefore["counter"])
	assert.EqualValues(t, 2, second.VariablesAfter["counter"])
}

func TestExecutions_SubWorkflowRunsInsideParent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.publish(t, testutil.CreateTestVersion("double", "O",
		testutil.WithNodes(
			testutil.SessionOpNode("O", &models.SessionOpConfig{
				Operation:  models.SessionOpCustom,
				Key:        "childOutput",
				Expression: "childVar * 2",
			}),
			testutil.TerminalNode("END"),
		),
		testutil.WithEdge("O", "END"),
	))
	f.publish(t, testutil.CreateTestVersion("parent", "S",
		testutil.WithNodes(
			testutil.SubWorkflowNode("S", "double",
				map[string]string{"childVar": "parentVar"},
				map[string]string{"parentResult": "childOutput"},
			),
			testutil.TerminalNode("T"),
		),
		testutil.WithEdge("S", "T"),
	))

	exec, err := f.executions.Start(ctx, StartRequest{
		WorkflowID: "parent",
		SessionID:  "session-1",
		Variables:  map[string]any{"parentVar": 5},
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusCompleted, exec.Status)

	details, err := f.executions.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, details.VariablesByScope[models.ScopeSession]["parentResult"])
	assert.NotContains(t, details.VariablesByScope[models.ScopeSession], "childOutput")
	assertContiguous(t, details)
}

func TestExecutions_StartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.publish(t, testutil.CreateTestVersion("typed", "T",
		testutil.WithNodes(testutil.TerminalNode("T")),
		testutil.WithVariableSchema(map[string]any{
			"type":       "object",
			"required":   []any{"tier"},
			"properties": map[string]any{"tier": map[string]any{"type": "string"}},
		}),
	))

	_, err := f.executions.Start(ctx, StartRequest{WorkflowID: "typed", SessionID: "s", Variables: map[string]any{"tier": 3}})
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = f.executions.Start(ctx, StartRequest{WorkflowID: "typed"})
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = f.executions.Start(ctx, StartRequest{WorkflowID: "unknown", SessionID: "s"})
	assert.Equal(t, CodeNotFound, CodeOf(err))

	page, err := f.executions.List(ctx, persistence.ListExecutionsOptions{WorkflowID: "typed"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "typed", SessionID: "s", Variables: map[string]any{"tier": "gold"}})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)
}

func TestExecutions_StartRejectsStoredInvalidDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	broken := testutil.CreateTestVersion("broken", "M",
		testutil.WithNodes(testutil.MessageNode("M", "hi")),
		testutil.WithEdge("M", "GONE"),
	)
	require.NoError(t, f.store.Versions().Save(ctx, broken))

	_, err := f.executions.Start(ctx, StartRequest{WorkflowID: "broken", SessionID: "s"})
	require.Error(t, err)
	assert.Equal(t, CodeDefinition, CodeOf(err))
}

func TestExecutions_MaxStepsFailsExecution(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.publish(t, testutil.CreateTestVersion("loop", "A",
		testutil.WithNodes(testutil.MessageNode("A", "a"), testutil.MessageNode("B", "b")),
		testutil.WithEdge("A", "B"),
		testutil.WithEdge("B", "A"),
		testutil.WithSettings(map[string]any{"max_steps": 10}),
	))

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loop", SessionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "step limit")
	assert.Contains(t, f.bus.types(), events.ExecutionFailedEvent)
}

func TestExecutions_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	cancelled, err := f.executions.Cancel(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.FinishedAt)

	_, err = f.executions.Resume(ctx, exec.ID, models.ResumeEvent{Type: models.ResumeEventMessage})
	assert.Equal(t, CodeConflict, CodeOf(err))

	_, err = f.executions.Cancel(ctx, exec.ID)
	assert.Equal(t, CodeConflict, CodeOf(err))

	assert.Equal(t, events.ExecutionCancelledEvent, f.bus.types()[len(f.bus.types())-1])
}

func TestPublishing_Versions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	first := f.publish(t, loyaltyFlow())
	second := f.publish(t, loyaltyFlow())
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	active, err := f.publishing.GetVersion(ctx, "loyalty", models.ActiveVersion)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)

	old, err := f.publishing.GetVersion(ctx, "loyalty", models.VersionNumber(1))
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	_, err = f.publishing.GetVersion(ctx, "loyalty", "x")
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = f.publishing.Publish(ctx, "loyalty", testutil.CreateTestVersion("loyalty", "NOPE",
		testutil.WithNodes(testutil.TerminalNode("T"))))
	require.Error(t, err)
	assert.Equal(t, CodeDefinition, CodeOf(err))

	all, err := f.publishing.ListVersions(ctx, "loyalty")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRestarts_DispatchAndRun(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.publish(t, testutil.CreateTestVersion("payout", "M",
		testutil.WithNodes(
			testutil.MessageNode("M", "Processing"),
			testutil.FailNode("F", "upstream down"),
		),
		testutil.WithEdge("M", "F"),
	))

	parent, err := f.executions.Start(ctx, StartRequest{WorkflowID: "payout", SessionID: "session-1"})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, parent.Status)

	result, err := f.restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, result.ParentExecutionID)
	assert.Equal(t, "M", result.RestartedFromNodeID)
	assert.Equal(t, "session-1", result.SessionID)

	child, err := f.store.Executions().GetByID(ctx, result.NewExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, child.Status)
	assert.Equal(t, parent.ID, child.ParentExecutionID)
	assert.Equal(t, "M", child.CurrentNodeID)

	event := f.bus.dispatched(t)
	assert.Equal(t, child.ID, event.ExecutionID)
	require.NoError(t, f.runner.HandleDispatched(ctx, event))

	child, err = f.store.Executions().GetByID(ctx, result.NewExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, child.Status)
	assert.Equal(t, 2, child.StepCount)

	// a redelivered dispatch of a finished execution is acknowledged without running
	require.NoError(t, f.runner.HandleDispatched(ctx, event))

	again, err := f.store.Executions().GetByID(ctx, result.NewExecutionID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.StepCount)

	untouched, err := f.store.Executions().GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, untouched.Status)
	assert.True(t, parent.UpdatedAt.Equal(untouched.UpdatedAt))
}

func TestRestarts_StartNodeSelection(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	parent, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	result, err := f.restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID, FromNodeID: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", result.RestartedFromNodeID)

	result, err = f.restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID, SkipCompleted: true})
	require.NoError(t, err)
	assert.Equal(t, "W", result.RestartedFromNodeID)

	result, err = f.restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID, ResetVariables: true})
	require.NoError(t, err)
	assert.NotEqual(t, "session-1", result.SessionID)
	assert.NotEmpty(t, result.SessionID)

	_, err = f.restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID, FromNodeID: "NOPE"})
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = f.restarts.Restart(ctx, RestartRequest{ExecutionID: "missing"})
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestRestarts_DispatchFailureMarksExecutionFailed(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	parent, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.AnythingOfType("*events.ExecutionDispatched")).
		Return(errors.New("broker unavailable"))

	versions := persistence.NewVersionSource(f.store.Versions())
	processor, err := testutil.NewProcessor(log.Discard(), versions, f.messenger, testutil.OKClient)
	require.NoError(t, err)

	restarts := NewRestarts(log.Discard(), f.store, versions, processor, bus)

	result, err := restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDispatchFailed)
	require.NotNil(t, result)

	child, err := f.store.Executions().GetByID(ctx, result.NewExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, child.Status)
	assert.Contains(t, child.Error, "broker unavailable")
	bus.AssertExpectations(t)
}

func TestRunner_SkipsClaimedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.publish(t, loyaltyFlow())

	parent, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)

	result, err := f.restarts.Restart(ctx, RestartRequest{ExecutionID: parent.ID})
	require.NoError(t, err)

	claimer := dispatch.NewMemoryClaimer(dispatch.DefaultClaimTTL)
	ok, err := claimer.Claim(ctx, result.NewExecutionID)
	require.NoError(t, err)
	require.True(t, ok)

	runner := NewRunner(log.Discard(), f.executions.Manager(), f.executions.processor, claimer, f.bus)
	require.NoError(t, runner.HandleDispatched(ctx, f.bus.dispatched(t)))

	child, err := f.store.Executions().GetByID(ctx, result.NewExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, child.Status)
	assert.Zero(t, child.StepCount)

	require.NoError(t, f.runner.HandleDispatched(ctx, f.bus.dispatched(t)))

	child, err = f.store.Executions().GetByID(ctx, result.NewExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, child.Status)
}

func TestVariables_ProjectValuesReachExecutions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	vars := NewVariables(log.Discard(), f.store.Variables())

	_, err := vars.Set(ctx, "project", "project-1", "step", 3)
	require.NoError(t, err)

	_, err = vars.Set(ctx, "project", "", "step", 3)
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = vars.Set(ctx, "tenant", "x", "step", 3)
	assert.Equal(t, CodeValidation, CodeOf(err))

	f.publish(t, loyaltyFlow())

	exec, err := f.executions.Start(ctx, StartRequest{WorkflowID: "loyalty", SessionID: "session-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status, "project step satisfies the condition")

	list, err := vars.List(ctx, "project", "project-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, vars.Delete(ctx, "project", "project-1", "step"))

	_, err = vars.Get(ctx, "project", "project-1", "step")
	assert.Equal(t, CodeNotFound, CodeOf(err))
}
