// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/services"
)

// StartExecutionRequest represents the request body for starting an execution.
type StartExecutionRequest struct {
	Version   string         `json:"version,omitempty"`
	SessionID string         `json:"session_id"          validate:"required"`
	UserID    string         `json:"user_id,omitempty"`
	ChatID    string         `json:"chat_id,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (r StartExecutionRequest) toService(workflowID string) services.StartRequest {
	return services.StartRequest{
		WorkflowID: workflowID,
		Version:    models.VersionRef(r.Version),
		SessionID:  r.SessionID,
		UserID:     r.UserID,
		ChatID:     r.ChatID,
		Variables:  r.Variables,
	}
}

// RestartExecutionRequest represents the request body for restarting an execution.
type RestartExecutionRequest struct {
	FromNodeID     string `json:"from_node_id,omitempty"`
	ResetVariables bool   `json:"reset_variables,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	SkipCompleted  bool   `json:"skip_completed,omitempty"`
}

// SetVariableRequest represents the request body for writing a variable.
type SetVariableRequest struct {
	Value any `json:"value"`
}
