package sessionop_test

import (
	"testing"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/nodes/sessionop"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, sc *testutil.StepContext, config *models.SessionOpConfig) protocol.Result {
	t.Helper()

	result, err := sessionop.NewHandler(nil).Execute(t.Context(), testutil.SessionOpNode("S", config), sc)
	require.NoError(t, err)
	assert.Equal(t, protocol.ResultNext, result.Kind)

	return result
}

func TestExecute_Arithmetic(t *testing.T) {
	t.Parallel()

	sc := testutil.NewStepContext("wf", map[string]any{"points": 10.0})

	run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpIncrement, Key: "points", Amount: testutil.Amount(5)})
	run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpDecrement, Key: "points"})

	points, _ := sc.Session("points")
	assert.InDelta(t, 14.0, points, 0)

	run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpIncrement, Key: "visits"})

	visits, _ := sc.Session("visits")
	assert.InDelta(t, 1.0, visits, 0)
}

func TestExecute_IncrementSkipsNonNumeric(t *testing.T) {
	t.Parallel()

	sc := testutil.NewStepContext("wf", map[string]any{"points": "12"})

	result := run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpIncrement, Key: "points"})
	assert.True(t, result.Skipped)
	assert.Equal(t, "non-numeric value", result.Output["reason"])

	points, _ := sc.Session("points")
	assert.Equal(t, "12", points)
}

func TestExecute_SetGetExistsDelete(t *testing.T) {
	t.Parallel()

	sc := testutil.NewStepContext("wf", map[string]any{"name": "Ana"})

	run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpSet, Key: "greeting", Value: "Hi {{.vars.name}}"})

	greeting, _ := sc.Session("greeting")
	assert.Equal(t, "Hi Ana", greeting)

	result := run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpGet, Key: "greeting", ResultVariable: "copy"})
	assert.Equal(t, "Hi Ana", result.Output["value"])

	copied, _ := sc.Session("copy")
	assert.Equal(t, "Hi Ana", copied)

	run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpDelete, Key: "greeting"})

	result = run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpExists, Key: "greeting", ResultVariable: "has_greeting"})
	assert.Equal(t, false, result.Output["exists"])

	has, _ := sc.Session("has_greeting")
	assert.Equal(t, false, has)

	run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpClear})
	assert.Empty(t, sc.Vars.Snapshot(models.ScopeSession))
}

func TestExecute_Merge(t *testing.T) {
	t.Parallel()

	sc := testutil.NewStepContext("wf", map[string]any{
		"profile": map[string]any{"name": "Ana", "prefs": map[string]any{"lang": "pt", "sms": true}},
	})

	run(t, sc, &models.SessionOpConfig{
		Operation: models.SessionOpMerge,
		Key:       "profile",
		Value:     map[string]any{"prefs": map[string]any{"lang": "en"}},
		DeepMerge: true,
	})

	profile, _ := sc.Session("profile")
	assert.Equal(t, map[string]any{"name": "Ana", "prefs": map[string]any{"lang": "en", "sms": true}}, profile)

	_, err := sessionop.NewHandler(nil).Execute(t.Context(), testutil.SessionOpNode("S", &models.SessionOpConfig{
		Operation: models.SessionOpMerge,
		Key:       "profile",
		Value:     "plain",
	}), sc)
	require.Error(t, err)
}

func TestExecute_CustomExpression(t *testing.T) {
	t.Parallel()

	sc := testutil.NewStepContext("wf", map[string]any{"points": 21.0})

	result := run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpCustom, Key: "double", Expression: "points * 2"})
	assert.InDelta(t, 42.0, result.Output["value"], 0)
}

func TestExecute_GateCondition(t *testing.T) {
	t.Parallel()

	sc := testutil.NewStepContext("wf", map[string]any{"tier": "silver"})
	gate := testutil.Where("tier", models.OpEquals, "gold")

	result := run(t, sc, &models.SessionOpConfig{Operation: models.SessionOpSet, Key: "bonus", Value: 50, Condition: &gate})
	assert.True(t, result.Skipped)

	_, found := sc.Session("bonus")
	assert.False(t, found)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 1}
	patch := map[string]any{"a": map[string]any{"y": 3}}

	assert.Equal(t, map[string]any{"a": map[string]any{"y": 3}, "b": 1}, sessionop.Merge(base, patch, false))
	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1, "y": 3}, "b": 1}, sessionop.Merge(base, patch, true))
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, base["a"], "base is not mutated")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	h := sessionop.NewHandler(nil)

	require.Error(t, h.Validate(testutil.SessionOpNode("S", &models.SessionOpConfig{
		Operation:  models.SessionOpCustom,
		Key:        "k",
		Expression: "points *",
	})))
	require.Error(t, h.Validate(testutil.SessionOpNode("S", &models.SessionOpConfig{
		Operation: models.SessionOpMerge,
		Key:       "k",
		Value:     7,
	})))
	require.NoError(t, h.Validate(testutil.SessionOpNode("S", &models.SessionOpConfig{
		Operation: models.SessionOpSet,
		Key:       "k",
		Value:     7,
	})))
}
