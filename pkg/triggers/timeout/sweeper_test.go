package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/loyalflow/pkg/log"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/persistence/file"
	"github.com/dukex/loyalflow/pkg/services"
	"github.com/dukex/loyalflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeper_Schedule(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	sweeper, err := NewSweeper(log.Discard(), "", store.Executions(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, sweeper.schedule)

	_, err = NewSweeper(log.Discard(), "every minute", store.Executions(), nil)
	require.Error(t, err)
}

func TestSweeper_ResumesExpiredWaits(t *testing.T) {
	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())
	versions := persistence.NewVersionSource(store.Versions())

	processor, err := testutil.NewProcessor(log.Discard(), versions, &testutil.Messenger{}, testutil.OKClient)
	require.NoError(t, err)

	publishing := services.NewPublishing(log.Discard(), store.Versions(), processor)
	executions := services.NewExecutions(log.Discard(), store, versions, processor, nil)

	_, err = publishing.Publish(ctx, "reminder", testutil.CreateTestVersion("reminder", "W",
		testutil.WithNodes(
			&models.Node{ID: "W", Type: models.NodeTypeWaitInput, Config: &models.WaitInputConfig{
				WaitType:       models.WaitTypeMessage,
				TimeoutSeconds: 60,
				TimeoutNodeID:  "EXPIRED",
			}},
			testutil.TerminalNode("ANSWERED"),
			testutil.TerminalNode("EXPIRED"),
		),
		testutil.WithEdge("W", "ANSWERED"),
	))
	require.NoError(t, err)

	_, err = publishing.Publish(ctx, "survey", testutil.CreateTestVersion("survey", "W",
		testutil.WithNodes(testutil.WaitNode("W", models.WaitTypeMessage, ""), testutil.TerminalNode("T")),
		testutil.WithEdge("W", "T"),
	))
	require.NoError(t, err)

	expiring, err := executions.Start(ctx, services.StartRequest{WorkflowID: "reminder", SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, expiring.WaitDeadline)

	open, err := executions.Start(ctx, services.StartRequest{WorkflowID: "survey", SessionID: "s2"})
	require.NoError(t, err)
	require.Nil(t, open.WaitDeadline)

	sweeper, err := NewSweeper(log.Discard(), "", store.Executions(), executions)
	require.NoError(t, err)

	resumed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, resumed, "deadline not reached yet")

	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	resumed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	got, err := store.Executions().GetByID(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, "EXPIRED", got.CurrentNodeID)

	untouched, err := store.Executions().GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, untouched.Status)

	resumed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, resumed)
}

func TestSweeper_StartStop(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	sweeper, err := NewSweeper(log.Discard(), "@every 1h", store.Executions(), nil)
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(t.Context()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, sweeper.Stop(ctx))
}
