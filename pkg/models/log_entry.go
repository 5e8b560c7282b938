package models

import "time"

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// OutcomeKey is the LogEntry.Data key holding the step outcome written by the
// processor.
const OutcomeKey = "outcome"

// StepOutcome is how a processor step ended.
type StepOutcome string

const (
	OutcomeCompleted StepOutcome = "completed"
	OutcomeFailed    StepOutcome = "failed"
	OutcomeSkipped   StepOutcome = "skipped"
	OutcomeWaiting   StepOutcome = "waiting"
	OutcomeResumed   StepOutcome = "resumed"
)

// HTTPCapture records one outbound HTTP exchange.
type HTTPCapture struct {
	Method     string            `json:"method,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
}

// LogEntry is an append-only record of one processor step.
type LogEntry struct {
	ID              string         `json:"id"`
	ExecutionID     string         `json:"execution_id"`
	Step            int            `json:"step"`
	NodeID          string         `json:"node_id"`
	NodeType        NodeType       `json:"node_type"`
	WorkflowID      string         `json:"workflow_id,omitempty"`
	Depth           int            `json:"depth,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	Level           LogLevel       `json:"level"`
	Message         string         `json:"message"`
	Data            map[string]any `json:"data,omitempty"`
	InputData       map[string]any `json:"input_data,omitempty"`
	OutputData      map[string]any `json:"output_data,omitempty"`
	VariablesBefore map[string]any `json:"variables_before,omitempty"`
	VariablesAfter  map[string]any `json:"variables_after,omitempty"`
	HTTPRequest     *HTTPCapture   `json:"http_request,omitempty"`
	HTTPResponse    *HTTPCapture   `json:"http_response,omitempty"`
	Error           string         `json:"error,omitempty"`
	DurationMs      *int64         `json:"duration_ms,omitempty"`
}
