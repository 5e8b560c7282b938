package subworkflow

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates sub_workflow handlers.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(deps.Versions)
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeSubWorkflow
}

func (f *Factory) Name() string {
	return "Sub-workflow"
}

func (f *Factory) Description() string {
	return "Runs another workflow with mapped input and output variables"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string", "minLength": 1},
			"version": map[string]any{
				"type":        "string",
				"description": "Version number or \"active\"",
				"default":     "active",
			},
			"input_mapping": map[string]any{
				"type":                 "object",
				"description":          "Child variable to parent variable reference",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"output_mapping": map[string]any{
				"type":                 "object",
				"description":          "Parent variable to child variable",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
		"required": []string{"workflow_id"},
	}
}
