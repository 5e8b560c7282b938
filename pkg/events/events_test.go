package events_test

import (
	"testing"
	"time"

	"github.com/dukex/loyalflow/pkg/events"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicOf(t *testing.T) {
	assert.Equal(t, events.DispatchTopic, events.TopicOf(events.ExecutionDispatchedEvent))
	assert.Equal(t, events.OutboundTopic, events.TopicOf(events.OutboundMessageEvent))
	assert.Equal(t, events.LifecycleTopic, events.TopicOf(events.ExecutionFailedEvent))
}

func TestLifecycle(t *testing.T) {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)

	exec := &models.Execution{
		ID:            "exec-1",
		WorkflowID:    "onboarding",
		SessionID:     "session-1",
		CurrentNodeID: "CALL",
		StepCount:     4,
		StartedAt:     started,
	}

	exec.Status = models.ExecutionStatusRunning
	assert.Nil(t, events.Lifecycle(exec))

	exec.Status = models.ExecutionStatusWaiting
	exec.WaitType = models.WaitTypeCallback
	waiting, ok := events.Lifecycle(exec).(*events.ExecutionWaiting)
	require.True(t, ok)
	assert.Equal(t, models.WaitTypeCallback, waiting.WaitType)
	assert.Equal(t, events.ExecutionWaitingEvent, waiting.Type)

	exec.Status = models.ExecutionStatusFailed
	exec.Error = "node CALL (http_request) failed: status 502"
	exec.FinishedAt = &finished
	failed, ok := events.Lifecycle(exec).(*events.ExecutionFailed)
	require.True(t, ok)
	assert.Equal(t, "CALL", failed.NodeID)
	assert.Equal(t, int64(3000), failed.DurationMs)
	assert.Equal(t, "onboarding", failed.WorkflowID)

	exec.Status = models.ExecutionStatusCancelled
	assert.Equal(t, events.ExecutionCancelledEvent, events.Lifecycle(exec).GetType())
}
