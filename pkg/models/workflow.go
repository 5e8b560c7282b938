// Package models defines the domain models of the conversational flow engine.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// VersionRef selects a workflow version: a decimal version number or "active".
type VersionRef string

// ActiveVersion selects the version currently marked active for a workflow.
const ActiveVersion VersionRef = "active"

// IsActive reports whether the reference points at the active version.
func (r VersionRef) IsActive() bool {
	return r == "" || r == ActiveVersion
}

// Number returns the explicit version number of the reference.
func (r VersionRef) Number() (int, error) {
	if r.IsActive() {
		return 0, fmt.Errorf("version reference %q has no number", r)
	}

	n, err := strconv.Atoi(string(r))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid version reference %q", r)
	}

	return n, nil
}

// VersionNumber builds a reference to an explicit version.
func VersionNumber(n int) VersionRef {
	return VersionRef(strconv.Itoa(n))
}

// WorkflowVersion is an immutable published snapshot of a conversational flow.
type WorkflowVersion struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"               validate:"required"`
	ProjectID      string           `json:"project_id,omitempty"`
	Name           string           `json:"name,omitempty"`
	Version        int              `json:"version"`
	Nodes          map[string]*Node `json:"nodes"                     validate:"required,min=1,dive"`
	Connections    []*Connection    `json:"connections"               validate:"dive"`
	EntryNodeID    string           `json:"entry_node_id"             validate:"required"`
	VariableSchema map[string]any   `json:"variable_schema,omitempty"`
	Settings       map[string]any   `json:"settings,omitempty"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Ref returns the explicit reference to this version.
func (v *WorkflowVersion) Ref() VersionRef {
	return VersionNumber(v.Version)
}

// MaxSteps returns the per-cycle step limit from the version settings.
func (v *WorkflowVersion) MaxSteps(fallback int) int {
	if v.Settings == nil {
		return fallback
	}

	switch n := v.Settings["max_steps"].(type) {
	case int:
		if n > 0 {
			return n
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	}

	return fallback
}
