package conditionnode

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates condition handlers.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(), nil
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeCondition
}

func (f *Factory) Name() string {
	return "Condition"
}

func (f *Factory) Description() string {
	return "Evaluates an AND/OR tree of variable comparisons and follows the true or false branch"
}

// Schema returns the JSON schema for condition node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression":    GroupSchema(),
			"true_node_id":  map[string]any{"type": "string"},
			"false_node_id": map[string]any{"type": "string"},
		},
		"required": []string{"expression"},
	}
}

// GroupSchema describes a condition group; session_op reuses it for gating.
func GroupSchema() map[string]any {
	operators := make([]string, 0, len(models.ComparisonOperators()))
	for _, op := range models.ComparisonOperators() {
		operators = append(operators, string(op))
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operator": map[string]any{"type": "string", "enum": []string{"and", "or"}},
			"comparisons": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"variable": map[string]any{"type": "string", "minLength": 1},
						"operator": map[string]any{"type": "string", "enum": operators},
						"value":    map[string]any{},
					},
					"required": []string{"variable", "operator"},
				},
			},
			"groups": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object"},
			},
		},
		"required": []string{"operator"},
	}
}
