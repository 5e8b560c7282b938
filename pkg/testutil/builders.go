// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/google/uuid"
)

// VersionOption customises a version built by CreateTestVersion.
type VersionOption func(*models.WorkflowVersion)

// CreateTestVersion creates an active version 1 of workflowID starting at entry.
func CreateTestVersion(workflowID, entry string, opts ...VersionOption) *models.WorkflowVersion {
	version := &models.WorkflowVersion{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		ProjectID:   "project-1",
		Name:        "Test " + workflowID,
		Version:     1,
		Nodes:       map[string]*models.Node{},
		EntryNodeID: entry,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(version)
	}

	return version
}

// WithNodes adds nodes keyed by their id.
func WithNodes(nodes ...*models.Node) VersionOption {
	return func(v *models.WorkflowVersion) {
		for _, n := range nodes {
			v.Nodes[n.ID] = n
		}
	}
}

// WithEdge adds a connection with an optional branch tag.
func WithEdge(source, target string, branch ...string) VersionOption {
	return func(v *models.WorkflowVersion) {
		conn := &models.Connection{ID: uuid.New().String(), Source: source, Target: target}
		if len(branch) > 0 {
			conn.Branch = branch[0]
		}

		v.Connections = append(v.Connections, conn)
	}
}

// WithVersionNumber sets the version number.
func WithVersionNumber(n int) VersionOption {
	return func(v *models.WorkflowVersion) {
		v.Version = n
	}
}

// WithSettings sets the version settings.
func WithSettings(settings map[string]any) VersionOption {
	return func(v *models.WorkflowVersion) {
		v.Settings = settings
	}
}

// WithVariableSchema sets the JSON schema initial variables must satisfy.
func WithVariableSchema(schema map[string]any) VersionOption {
	return func(v *models.WorkflowVersion) {
		v.VariableSchema = schema
	}
}

func MessageNode(id, text string, buttons ...models.Button) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeMessage, Config: &models.MessageConfig{Text: text, Buttons: buttons}}
}

func ConditionNode(id string, expr models.ConditionGroup) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeCondition, Config: &models.ConditionConfig{Expression: expr}}
}

func SessionOpNode(id string, config *models.SessionOpConfig) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeSessionOp, Config: config}
}

func WaitNode(id string, waitType models.WaitType, variable string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeWaitInput, Config: &models.WaitInputConfig{WaitType: waitType, Variable: variable}}
}

func SubWorkflowNode(id, workflowID string, input, output map[string]string) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeSubWorkflow,
		Config: &models.SubWorkflowConfig{
			WorkflowID:    workflowID,
			Version:       models.ActiveVersion,
			InputMapping:  input,
			OutputMapping: output,
		},
	}
}

func HTTPNode(id string, config *models.HTTPRequestConfig) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeHTTPRequest, Config: config}
}

func TerminalNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeTerminal, Config: &models.TerminalConfig{Outcome: models.TerminalCompleted}}
}

func FailNode(id, message string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeTerminal, Config: &models.TerminalConfig{Outcome: models.TerminalFailed, Error: message}}
}

// Where builds a single-comparison AND group.
func Where(variable string, op models.ComparisonOperator, value any) models.ConditionGroup {
	return models.ConditionGroup{
		Operator:    models.LogicalAnd,
		Comparisons: []models.Comparison{{Variable: variable, Operator: op, Value: value}},
	}
}

// Amount returns a pointer for SessionOpConfig.Amount.
func Amount(n float64) *float64 {
	return &n
}

// CreateTestExecution creates a running execution of version bound to a session.
func CreateTestExecution(version *models.WorkflowVersion, sessionID string) *models.Execution {
	now := time.Now().UTC()

	return &models.Execution{
		ID:            uuid.New().String(),
		WorkflowID:    version.WorkflowID,
		Version:       version.Version,
		ProjectID:     version.ProjectID,
		SessionID:     sessionID,
		UserID:        "user-1",
		Status:        models.ExecutionStatusRunning,
		CurrentNodeID: version.EntryNodeID,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}
