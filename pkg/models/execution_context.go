package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// WaitType is the kind of external event a waiting execution expects.
type WaitType string

const (
	WaitTypeMessage  WaitType = "message"
	WaitTypeCallback WaitType = "callback"
	WaitTypeAny      WaitType = "any"
)

// Execution is one durable run of a workflow version bound to a session.
type Execution struct {
	ID                  string          `json:"id"`
	WorkflowID          string          `json:"workflow_id"`
	Version             int             `json:"version"`
	ProjectID           string          `json:"project_id,omitempty"`
	SessionID           string          `json:"session_id"`
	UserID              string          `json:"user_id,omitempty"`
	ChatID              string          `json:"chat_id,omitempty"`
	Status              ExecutionStatus `json:"status"`
	CurrentNodeID       string          `json:"current_node_id,omitempty"`
	WaitType            WaitType        `json:"wait_type,omitempty"`
	WaitPayload         map[string]any  `json:"wait_payload,omitempty"`
	WaitDeadline        *time.Time      `json:"wait_deadline,omitempty"`
	StepCount           int             `json:"step_count"`
	Error               string          `json:"error,omitempty"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ParentExecutionID   string          `json:"parent_execution_id,omitempty"`
	RestartedFromNodeID string          `json:"restarted_from_node_id,omitempty"`
}

// Clone returns a copy that can be mutated without touching the original.
func (e *Execution) Clone() *Execution {
	c := *e
	if e.WaitPayload != nil {
		c.WaitPayload = CloneMap(e.WaitPayload)
	}

	return &c
}

// ClearWait drops any wait state.
func (e *Execution) ClearWait() {
	e.WaitType = ""
	e.WaitPayload = nil
	e.WaitDeadline = nil
}

// ResumeEventType is the kind of inbound event delivered to a waiting execution.
type ResumeEventType string

const (
	ResumeEventMessage  ResumeEventType = "message"
	ResumeEventCallback ResumeEventType = "callback"
	ResumeEventTimeout  ResumeEventType = "timeout"
)

// ResumeEvent is delivered by the trigger layer to continue a waiting execution.
type ResumeEvent struct {
	Type         ResumeEventType `json:"type"                    validate:"required,oneof=message callback timeout"`
	Text         string          `json:"text,omitempty"`
	CallbackData string          `json:"callback_data,omitempty"`
	Variables    map[string]any  `json:"variables,omitempty"`
}

// Accepts reports whether an execution waiting for w may be resumed by the event.
func (w WaitType) Accepts(event ResumeEventType) bool {
	switch {
	case event == ResumeEventTimeout, w == WaitTypeAny:
		return true
	case w == WaitTypeMessage:
		return event == ResumeEventMessage
	case w == WaitTypeCallback:
		return event == ResumeEventCallback
	default:
		return false
	}
}

// WaitState is the suspension point reported by a handler.
type WaitState struct {
	Type     WaitType       `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	Deadline *time.Time     `json:"deadline,omitempty"`
}

// NestedPayloadKey holds the suspended sub-workflow frame inside a wait payload.
const NestedPayloadKey = "nested"

// NestedFrame records where a suspended sub-workflow stopped so that a resume
// can re-enter it. Wait may itself carry a deeper frame.
type NestedFrame struct {
	WorkflowID string         `json:"workflow_id"`
	Version    int            `json:"version"`
	NodeID     string         `json:"node_id"`
	Variables  map[string]any `json:"variables,omitempty"`
	Wait       WaitState      `json:"wait"`
}

// ToPayload converts the frame into a JSON-compatible map.
func (f *NestedFrame) ToPayload() (map[string]any, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nested frame: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode nested frame: %w", err)
	}

	return out, nil
}

// NestedFrameFromPayload extracts the nested frame stored in a wait payload.
func NestedFrameFromPayload(payload map[string]any) (*NestedFrame, error) {
	raw, ok := payload[NestedPayloadKey]
	if !ok {
		return nil, fmt.Errorf("wait payload has no %q frame", NestedPayloadKey)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nested frame: %w", err)
	}

	var frame NestedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode nested frame: %w", err)
	}

	return &frame, nil
}

// CloneMap deep copies JSON-like maps and slices.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}
