// Package history turns the append-only execution log into per-step views.
package history

import (
	"sort"
	"strings"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
)

// StepStatus is the display status of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
	StepSkipped   StepStatus = "skipped"
)

// StepView merges every log entry of one (step, node) pair.
type StepView struct {
	Step            int                 `json:"step"`
	NodeID          string              `json:"node_id"`
	NodeType        models.NodeType     `json:"node_type"`
	WorkflowID      string              `json:"workflow_id,omitempty"`
	Depth           int                 `json:"depth,omitempty"`
	Status          StepStatus          `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
	DurationMs      int64               `json:"duration_ms"`
	Messages        []string            `json:"messages"`
	Data            map[string]any      `json:"data,omitempty"`
	InputData       map[string]any      `json:"input_data,omitempty"`
	OutputData      map[string]any      `json:"output_data,omitempty"`
	VariablesBefore map[string]any      `json:"variables_before,omitempty"`
	VariablesAfter  map[string]any      `json:"variables_after,omitempty"`
	HTTPRequest     *models.HTTPCapture `json:"http_request,omitempty"`
	HTTPResponse    *models.HTTPCapture `json:"http_response,omitempty"`
	Error           string              `json:"error,omitempty"`

	explicitDuration bool
}

type groupKey struct {
	step   int
	nodeID string
}

// Aggregate groups entries by step and node and returns one view per group,
// ordered by step.
func Aggregate(entries []*models.LogEntry) []*StepView {
	sorted := make([]*models.LogEntry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Step != sorted[j].Step {
			return sorted[i].Step < sorted[j].Step
		}

		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	views := []*StepView{}
	index := map[groupKey]*StepView{}

	for _, entry := range sorted {
		key := groupKey{step: entry.Step, nodeID: entry.NodeID}

		view, ok := index[key]
		if !ok {
			view = &StepView{
				Step:       entry.Step,
				NodeID:     entry.NodeID,
				NodeType:   entry.NodeType,
				WorkflowID: entry.WorkflowID,
				Depth:      entry.Depth,
				StartedAt:  entry.Timestamp,
				Messages:   []string{},
			}
			index[key] = view
			views = append(views, view)
		}

		view.merge(entry)
	}

	for _, view := range views {
		view.finish()
	}

	return views
}

func (v *StepView) merge(entry *models.LogEntry) {
	if entry.Message != "" {
		v.Messages = append(v.Messages, entry.Message)
	}

	if entry.Timestamp.Before(v.StartedAt) {
		v.StartedAt = entry.Timestamp
	}

	if entry.Timestamp.After(v.FinishedAt) {
		v.FinishedAt = entry.Timestamp
	}

	v.Data = mergeMap(v.Data, entry.Data)
	v.InputData = mergeMap(v.InputData, entry.InputData)
	v.OutputData = mergeMap(v.OutputData, entry.OutputData)

	// first before-snapshot, last after-snapshot
	if v.VariablesBefore == nil {
		v.VariablesBefore = entry.VariablesBefore
	}

	if entry.VariablesAfter != nil {
		v.VariablesAfter = entry.VariablesAfter
	}

	if entry.HTTPRequest != nil {
		v.HTTPRequest = entry.HTTPRequest
	}

	if entry.HTTPResponse != nil {
		v.HTTPResponse = entry.HTTPResponse
	}

	if entry.DurationMs != nil {
		v.DurationMs += *entry.DurationMs
		v.explicitDuration = true
	}

	if entry.Error != "" {
		v.Error = entry.Error
	}

	v.Status = combine(v.Status, statusOf(entry))
}

func (v *StepView) finish() {
	if v.FinishedAt.IsZero() {
		v.FinishedAt = v.StartedAt
	}

	if !v.explicitDuration {
		v.DurationMs = v.FinishedAt.Sub(v.StartedAt).Milliseconds()
	}

	if v.Status == "" {
		v.Status = StepPending
	}
}

// statusOf derives a status from one entry. The outcome recorded by the
// processor wins; otherwise the verb of the message after the node id is used.
func statusOf(entry *models.LogEntry) StepStatus {
	if entry.Level == models.LogLevelError || entry.Error != "" {
		return StepError
	}

	if outcome, ok := entry.Data[models.OutcomeKey].(string); ok {
		if status, known := outcomes[models.StepOutcome(outcome)]; known {
			return status
		}
	}

	msg := strings.ToLower(verb(entry))

	switch {
	case strings.Contains(msg, "failed"), strings.Contains(msg, "error"):
		return StepError
	case strings.Contains(msg, "skipped"):
		return StepSkipped
	case strings.Contains(msg, "completed"), strings.Contains(msg, "resumed"), strings.Contains(msg, "finished"):
		return StepCompleted
	case strings.Contains(msg, "waiting"):
		return StepPending
	default:
		return StepRunning
	}
}

var outcomes = map[models.StepOutcome]StepStatus{
	models.OutcomeCompleted: StepCompleted,
	models.OutcomeResumed:   StepCompleted,
	models.OutcomeFailed:    StepError,
	models.OutcomeSkipped:   StepSkipped,
	models.OutcomeWaiting:   StepPending,
}

// verb drops the "Node <id> " prefix so node ids never match status keywords.
func verb(entry *models.LogEntry) string {
	msg := entry.Message

	if entry.NodeID != "" {
		if rest, ok := strings.CutPrefix(msg, "Node "+entry.NodeID+" "); ok {
			return rest
		}
	}

	if rest, ok := strings.CutPrefix(msg, "Node "); ok {
		if _, after, found := strings.Cut(rest, " "); found {
			return after
		}
	}

	return msg
}

var rank = map[StepStatus]int{
	"":            0,
	StepRunning:   1,
	StepPending:   2,
	StepCompleted: 3,
	StepSkipped:   4,
	StepError:     5,
}

func combine(current, next StepStatus) StepStatus {
	if rank[next] > rank[current] {
		return next
	}

	return current
}

func mergeMap(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}

	if dst == nil {
		dst = make(map[string]any, len(src))
	}

	for k, v := range src {
		dst[k] = v
	}

	return dst
}
