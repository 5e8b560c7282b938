package subworkflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/nodes/subworkflow"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runner returns a fixed outcome and records the seed it was given.
type runner struct {
	outcome protocol.SubflowOutcome
	seed    map[string]any
	resumed *models.NestedFrame
}

func (r *runner) RunSubflow(_ context.Context, _ protocol.StepContext, _ *models.WorkflowVersion, seed map[string]any) (protocol.SubflowOutcome, error) {
	r.seed = seed
	return r.outcome, nil
}

func (r *runner) ResumeSubflow(_ context.Context, _ protocol.StepContext, frame *models.NestedFrame, _ models.ResumeEvent) (protocol.SubflowOutcome, error) {
	r.resumed = frame
	return r.outcome, nil
}

func setup(t *testing.T, outcome protocol.SubflowOutcome) (*subworkflow.Handler, *testutil.StepContext, *runner) {
	t.Helper()

	child := testutil.CreateTestVersion("double", "T", testutil.WithNodes(testutil.TerminalNode("T")))

	h, err := subworkflow.NewHandler(testutil.NewVersions(child))
	require.NoError(t, err)

	r := &runner{outcome: outcome}
	sc := testutil.NewStepContext("parent", map[string]any{"points": 21.0})
	sc.Runner = r

	return h, sc, r
}

var node = testutil.SubWorkflowNode("SUB", "double",
	map[string]string{"childVar": "session.points", "absent": "missing"},
	map[string]string{"doubled": "session.result"},
)

func TestExecute_CompletedCopiesOutputs(t *testing.T) {
	t.Parallel()

	h, sc, r := setup(t, protocol.SubflowOutcome{
		Status:    models.ExecutionStatusCompleted,
		Variables: map[string]any{"result": 42.0},
	})

	result, err := h.Execute(t.Context(), node, sc)
	require.NoError(t, err)
	assert.Equal(t, protocol.ResultNext, result.Kind)
	assert.Equal(t, map[string]any{"childVar": 21.0}, r.seed)

	doubled, _ := sc.Session("doubled")
	assert.InDelta(t, 42.0, doubled, 0)
}

func TestExecute_SuspendedStoresFrame(t *testing.T) {
	t.Parallel()

	frame := &models.NestedFrame{
		WorkflowID: "double",
		Version:    1,
		NodeID:     "W",
		Wait:       models.WaitState{Type: models.WaitTypeMessage},
	}

	h, sc, r := setup(t, protocol.SubflowOutcome{Status: models.ExecutionStatusWaiting, Frame: frame})

	result, err := h.Execute(t.Context(), node, sc)
	require.NoError(t, err)
	require.Equal(t, protocol.ResultSuspend, result.Kind)
	assert.Equal(t, models.WaitTypeMessage, result.Wait.Type)

	r.outcome = protocol.SubflowOutcome{Status: models.ExecutionStatusCompleted, Variables: map[string]any{"result": 8.0}}

	resumed, err := h.Resume(t.Context(), node, sc, *result.Wait, models.ResumeEvent{Type: models.ResumeEventMessage, Text: "4"})
	require.NoError(t, err)
	assert.Equal(t, protocol.ResultNext, resumed.Kind)
	require.NotNil(t, r.resumed)
	assert.Equal(t, "W", r.resumed.NodeID)

	doubled, _ := sc.Session("doubled")
	assert.InDelta(t, 8.0, doubled, 0)
}

func TestExecute_Errors(t *testing.T) {
	t.Parallel()

	t.Run("child failed", func(t *testing.T) {
		t.Parallel()

		h, sc, _ := setup(t, protocol.SubflowOutcome{Status: models.ExecutionStatusFailed, Err: errors.New("boom")})

		_, err := h.Execute(t.Context(), node, sc)
		require.ErrorContains(t, err, "boom")
	})

	t.Run("depth exceeded", func(t *testing.T) {
		t.Parallel()

		h, sc, r := setup(t, protocol.SubflowOutcome{Status: models.ExecutionStatusCompleted})
		sc.Level = models.MaxSubWorkflowDepth

		_, err := h.Execute(t.Context(), node, sc)

		var depthErr *models.DepthExceededError
		require.ErrorAs(t, err, &depthErr)
		assert.Nil(t, r.seed)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		t.Parallel()

		h, sc, _ := setup(t, protocol.SubflowOutcome{Status: models.ExecutionStatusCompleted})

		_, err := h.Execute(t.Context(), testutil.SubWorkflowNode("SUB", "nope", nil, nil), sc)
		require.ErrorContains(t, err, "unreachable")
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	h, _, _ := setup(t, protocol.SubflowOutcome{})

	require.NoError(t, h.Validate(node))

	pinned := testutil.SubWorkflowNode("SUB", "double", nil, nil)
	pinned.Config.(*models.SubWorkflowConfig).Version = models.VersionRef("latest")
	require.Error(t, h.Validate(pinned))
}
