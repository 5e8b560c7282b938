package postgresql_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukex/loyalflow/pkg/log"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/persistence/postgresql"
	"github.com/dukex/loyalflow/pkg/testutil"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{"execution_logs", "variables", "executions", "workflow_versions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("loyalflow_test"),
			postgres.WithUsername("loyalflow"),
			postgres.WithPassword("loyalflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	p, err := postgresql.NewPersistence(ctx, log.Discard(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func createExecution(ctx context.Context, t *testing.T, p *postgresql.Persistence) *models.Execution {
	t.Helper()

	version := testutil.CreateTestVersion("onboarding", "M")
	exec := testutil.CreateTestExecution(version, "session-"+uuid.NewString())
	require.NoError(t, p.Executions().Create(ctx, exec))

	return exec
}

func TestPersistence_HealthCheck(t *testing.T) {
	p, ctx := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))
}

func TestExecutions_CreateGet(t *testing.T) {
	p, ctx := setupTestDB(t)
	exec := createExecution(ctx, t, p)

	got, err := p.Executions().GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.SessionID, got.SessionID)
	assert.Equal(t, exec.UserID, got.UserID)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)
	assert.Nil(t, got.WaitPayload)
	assert.Nil(t, got.FinishedAt)

	err = p.Executions().Create(ctx, exec)
	require.ErrorIs(t, err, persistence.ErrExecutionExists)

	_, err = p.Executions().GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestExecutions_CompareAndSetStatus(t *testing.T) {
	p, ctx := setupTestDB(t)
	exec := createExecution(ctx, t, p)

	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	exec.Status = models.ExecutionStatusWaiting
	exec.WaitType = models.WaitTypeMessage
	exec.WaitPayload = map[string]any{"prompt": "name?"}
	exec.WaitDeadline = &deadline
	require.NoError(t, p.Commit(ctx, &persistence.Commit{Execution: exec, ExpectedStatus: models.ExecutionStatusRunning}))

	updated, err := p.Executions().CompareAndSetStatus(ctx, exec.ID, models.ExecutionStatusRunning, models.ExecutionStatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, updated.Status)
	assert.Equal(t, models.WaitTypeMessage, updated.WaitType)
	assert.Equal(t, "name?", updated.WaitPayload["prompt"])
	require.NotNil(t, updated.WaitDeadline)
	assert.WithinDuration(t, deadline, *updated.WaitDeadline, time.Millisecond)

	_, err = p.Executions().CompareAndSetStatus(ctx, exec.ID, models.ExecutionStatusRunning, models.ExecutionStatusWaiting)
	require.Error(t, err)
	assert.True(t, models.IsConcurrencyConflict(err))

	cancelled, err := p.Executions().CompareAndSetStatus(ctx, exec.ID, models.ExecutionStatusCancelled,
		models.ExecutionStatusRunning, models.ExecutionStatusWaiting)
	require.NoError(t, err)
	assert.NotNil(t, cancelled.FinishedAt)

	_, err = p.Executions().CompareAndSetStatus(ctx, uuid.NewString(), models.ExecutionStatusRunning, models.ExecutionStatusWaiting)
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestCommit_IsAllOrNothing(t *testing.T) {
	p, ctx := setupTestDB(t)
	exec := createExecution(ctx, t, p)

	duration := int64(12)
	exec.Status = models.ExecutionStatusCompleted
	exec.StepCount = 1
	commit := &persistence.Commit{
		Execution:      exec,
		ExpectedStatus: models.ExecutionStatusWaiting,
		Variables: []models.VariableChange{
			{Scope: models.ScopeSession, OwnerKey: exec.SessionID, Key: "step", Value: 3.0},
			{Scope: models.ScopeUser, OwnerKey: exec.UserID, Key: "tags", Value: []any{"vip"}},
		},
		Logs: []*models.LogEntry{{
			ID:             uuid.NewString(),
			ExecutionID:    exec.ID,
			Step:           1,
			NodeID:         "M",
			NodeType:       models.NodeTypeMessage,
			Timestamp:      time.Now().UTC(),
			Level:          models.LogLevelInfo,
			Message:        "Node M completed",
			VariablesAfter: map[string]any{"step": 3.0},
			HTTPRequest:    &models.HTTPCapture{Method: "GET", URL: "https://example.com"},
			DurationMs:     &duration,
		}},
	}

	err := p.Commit(ctx, commit)
	require.True(t, models.IsConcurrencyConflict(err))

	logs, err := p.Logs().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = p.Variables().Get(ctx, models.ScopeSession, exec.SessionID, "step")
	require.ErrorIs(t, err, persistence.ErrVariableNotFound)

	commit.ExpectedStatus = models.ExecutionStatusRunning
	require.NoError(t, p.Commit(ctx, commit))

	logs, err = p.Logs().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Node M completed", logs[0].Message)
	assert.InDelta(t, 3.0, logs[0].VariablesAfter["step"], 0)
	assert.Equal(t, "GET", logs[0].HTTPRequest.Method)
	require.NotNil(t, logs[0].DurationMs)
	assert.Equal(t, int64(12), *logs[0].DurationMs)

	v, err := p.Variables().Get(ctx, models.ScopeSession, exec.SessionID, "step")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v.Value, 0)

	tags, err := p.Variables().Get(ctx, models.ScopeUser, exec.UserID, "tags")
	require.NoError(t, err)
	assert.Equal(t, []any{"vip"}, tags.Value)

	got, err := p.Executions().GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, 1, got.StepCount)
}

func TestCommit_DeletesVariables(t *testing.T) {
	p, ctx := setupTestDB(t)
	exec := createExecution(ctx, t, p)

	require.NoError(t, p.Variables().Set(ctx, &models.Variable{Scope: models.ScopeSession, OwnerKey: exec.SessionID, Key: "tmp", Value: "x"}))

	require.NoError(t, p.Commit(ctx, &persistence.Commit{
		Execution:      exec,
		ExpectedStatus: models.ExecutionStatusRunning,
		Variables:      []models.VariableChange{{Scope: models.ScopeSession, OwnerKey: exec.SessionID, Key: "tmp", Deleted: true}},
	}))

	_, err := p.Variables().Get(ctx, models.ScopeSession, exec.SessionID, "tmp")
	require.ErrorIs(t, err, persistence.ErrVariableNotFound)
}

func TestVariables_Scopes(t *testing.T) {
	p, ctx := setupTestDB(t)

	require.NoError(t, p.Variables().Set(ctx, &models.Variable{Scope: models.ScopeGlobal, OwnerKey: "ignored", Key: "brand", Value: "Acme"}))
	require.NoError(t, p.Variables().Set(ctx, &models.Variable{Scope: models.ScopeProject, OwnerKey: "p1", Key: "currency", Value: "EUR"}))
	require.NoError(t, p.Variables().Set(ctx, &models.Variable{Scope: models.ScopeProject, OwnerKey: "p1", Key: "bonus", Value: 5.0}))
	require.NoError(t, p.Variables().Set(ctx, &models.Variable{Scope: models.ScopeProject, OwnerKey: "p1", Key: "bonus", Value: 7.0}))

	global, err := p.Variables().ListByOwner(ctx, models.ScopeGlobal, "")
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "Acme", global[0].Value)

	project, err := p.Variables().ListByOwner(ctx, models.ScopeProject, "p1")
	require.NoError(t, err)
	require.Len(t, project, 2)
	assert.Equal(t, "bonus", project[0].Key)
	assert.InDelta(t, 7.0, project[0].Value, 0)

	require.NoError(t, p.Variables().Delete(ctx, models.ScopeProject, "p1", "bonus"))

	project, err = p.Variables().ListByOwner(ctx, models.ScopeProject, "p1")
	require.NoError(t, err)
	assert.Len(t, project, 1)
}

func TestVersions_ActiveSwitch(t *testing.T) {
	p, ctx := setupTestDB(t)

	v1 := testutil.CreateTestVersion("onboarding", "W",
		testutil.WithNodes(testutil.WaitNode("W", models.WaitTypeMessage, "answer"), testutil.TerminalNode("T")),
		testutil.WithEdge("W", "T"),
		testutil.WithSettings(map[string]any{"max_steps": 50}),
	)
	v2 := testutil.CreateTestVersion("onboarding", "T", testutil.WithNodes(testutil.TerminalNode("T")), testutil.WithVersionNumber(2))

	require.NoError(t, p.Versions().Save(ctx, v1))
	require.NoError(t, p.Versions().Save(ctx, v2))

	dup := testutil.CreateTestVersion("onboarding", "T", testutil.WithNodes(testutil.TerminalNode("T")), testutil.WithVersionNumber(2))
	require.ErrorIs(t, p.Versions().Save(ctx, dup), persistence.ErrVersionExists)

	active, err := p.Versions().GetActive(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)

	first, err := p.Versions().Get(ctx, "onboarding", 1)
	require.NoError(t, err)
	assert.False(t, first.IsActive)
	assert.Equal(t, 50, first.MaxSteps(1000))
	require.IsType(t, &models.WaitInputConfig{}, first.Nodes["W"].Config)
	require.Len(t, first.Connections, 1)

	versions, err := p.Versions().List(ctx, "onboarding")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)

	latest, err := p.Versions().LatestNumber(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	latest, err = p.Versions().LatestNumber(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, latest)

	_, err = p.Versions().GetActive(ctx, "unknown")
	require.ErrorIs(t, err, persistence.ErrVersionNotFound)
}

func TestExecutions_List(t *testing.T) {
	p, ctx := setupTestDB(t)
	version := testutil.CreateTestVersion("onboarding", "M")
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	for i, status := range []models.ExecutionStatus{
		models.ExecutionStatusCompleted,
		models.ExecutionStatusWaiting,
		models.ExecutionStatusFailed,
	} {
		exec := testutil.CreateTestExecution(version, "session-1")
		exec.Status = status
		exec.StartedAt = base.Add(time.Duration(i) * time.Hour)

		if status == models.ExecutionStatusFailed {
			exec.Error = "node CALL failed: upstream 100%_timeout"
		}

		if status == models.ExecutionStatusWaiting {
			deadline := base
			exec.WaitDeadline = &deadline
		}

		require.NoError(t, p.Executions().Create(ctx, exec))
	}

	other := testutil.CreateTestExecution(testutil.CreateTestVersion("other", "M"), "session-2")
	require.NoError(t, p.Executions().Create(ctx, other))

	page, err := p.Executions().List(ctx, persistence.ListExecutionsOptions{WorkflowID: "onboarding"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, models.ExecutionStatusFailed, page.Items[0].Status)

	page, err = p.Executions().List(ctx, persistence.ListExecutionsOptions{
		WorkflowID: "onboarding",
		Statuses:   []models.ExecutionStatus{models.ExecutionStatusWaiting, models.ExecutionStatusCompleted},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = p.Executions().List(ctx, persistence.ListExecutionsOptions{WorkflowID: "onboarding", Search: "100%_TIME"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = p.Executions().List(ctx, persistence.ListExecutionsOptions{WorkflowID: "onboarding", Search: "100%%"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	from := base.Add(30 * time.Minute)
	page, err = p.Executions().List(ctx, persistence.ListExecutionsOptions{WorkflowID: "onboarding", From: &from, Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, models.ExecutionStatusWaiting, page.Items[0].Status)

	before := base.Add(time.Minute)
	page, err = p.Executions().List(ctx, persistence.ListExecutionsOptions{WaitDeadlineBefore: &before})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = p.Executions().List(ctx, persistence.ListExecutionsOptions{SessionID: "session-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
