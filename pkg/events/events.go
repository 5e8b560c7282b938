// Package events defines the messages exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	DispatchTopic  = "loyalflow.dispatch"   // executions waiting for a worker
	LifecycleTopic = "loyalflow.executions" // status changes of executions
	OutboundTopic  = "loyalflow.outbound"   // messages for delivery providers
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionDispatchedEvent EventType = "execution.dispatched"

	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	OutboundMessageEvent EventType = "outbound.message"
)

// TopicOf returns the topic an event type is published on.
func TopicOf(eventType EventType) string {
	switch eventType {
	case ExecutionDispatchedEvent:
		return DispatchTopic
	case OutboundMessageEvent:
		return OutboundTopic
	default:
		return LifecycleTopic
	}
}

// Event is implemented by every message published on the bus.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExecutionDispatched asks a worker to run an execution that is already
// persisted as running.
type ExecutionDispatched struct {
	BaseEvent

	ExecutionID       string `json:"execution_id"`
	ParentExecutionID string `json:"parent_execution_id,omitempty"`
	StartNodeID       string `json:"start_node_id"`
}

func (e ExecutionDispatched) GetType() EventType {
	return ExecutionDispatchedEvent
}

type ExecutionWaiting struct {
	BaseEvent

	ExecutionID  string          `json:"execution_id"`
	SessionID    string          `json:"session_id"`
	NodeID       string          `json:"node_id"`
	WaitType     models.WaitType `json:"wait_type"`
	WaitDeadline *time.Time      `json:"wait_deadline,omitempty"`
	StepCount    int             `json:"step_count"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	NodeID      string `json:"node_id"`
	StepCount   int    `json:"step_count"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	StepCount   int    `json:"step_count"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	NodeID      string `json:"node_id"`
	StepCount   int    `json:"step_count"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// OutboundMessage carries a rendered message to the delivery providers.
type OutboundMessage struct {
	BaseEvent

	Message protocol.OutboundMessage `json:"message"`
}

func (e OutboundMessage) GetType() EventType {
	return OutboundMessageEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// Lifecycle builds the status event of a persisted execution. It returns nil
// while the execution is still running.
func Lifecycle(exec *models.Execution) Event {
	var duration int64
	if exec.FinishedAt != nil {
		duration = exec.FinishedAt.Sub(exec.StartedAt).Milliseconds()
	}

	switch exec.Status {
	case models.ExecutionStatusWaiting:
		return &ExecutionWaiting{
			BaseEvent:    NewBaseEvent(ExecutionWaitingEvent, exec.WorkflowID),
			ExecutionID:  exec.ID,
			SessionID:    exec.SessionID,
			NodeID:       exec.CurrentNodeID,
			WaitType:     exec.WaitType,
			WaitDeadline: exec.WaitDeadline,
			StepCount:    exec.StepCount,
		}
	case models.ExecutionStatusCompleted:
		return &ExecutionCompleted{
			BaseEvent:   NewBaseEvent(ExecutionCompletedEvent, exec.WorkflowID),
			ExecutionID: exec.ID,
			SessionID:   exec.SessionID,
			NodeID:      exec.CurrentNodeID,
			StepCount:   exec.StepCount,
			DurationMs:  duration,
		}
	case models.ExecutionStatusFailed:
		return &ExecutionFailed{
			BaseEvent:   NewBaseEvent(ExecutionFailedEvent, exec.WorkflowID),
			ExecutionID: exec.ID,
			SessionID:   exec.SessionID,
			NodeID:      exec.CurrentNodeID,
			Error:       exec.Error,
			StepCount:   exec.StepCount,
			DurationMs:  duration,
		}
	case models.ExecutionStatusCancelled:
		return &ExecutionCancelled{
			BaseEvent:   NewBaseEvent(ExecutionCancelledEvent, exec.WorkflowID),
			ExecutionID: exec.ID,
			SessionID:   exec.SessionID,
			NodeID:      exec.CurrentNodeID,
			StepCount:   exec.StepCount,
		}
	default:
		return nil
	}
}
