package sessionop

import (
	"github.com/dukex/loyalflow/pkg/models"
	conditionnode "github.com/dukex/loyalflow/pkg/nodes/condition"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates session_op handlers.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(deps.Expr), nil
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeSessionOp
}

func (f *Factory) Name() string {
	return "Session Operation"
}

func (f *Factory) Description() string {
	return "Reads or mutates session variables, optionally gated by a condition"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"get", "set", "delete", "increment", "decrement", "merge", "clear", "exists", "custom"},
			},
			"key":             map[string]any{"type": "string"},
			"value":           map[string]any{},
			"amount":          map[string]any{"type": "number"},
			"deep_merge":      map[string]any{"type": "boolean", "default": false},
			"result_variable": map[string]any{"type": "string"},
			"expression": map[string]any{
				"type":        "string",
				"description": "expr-lang expression for the custom operation, e.g. points * 2",
			},
			"condition": conditionnode.GroupSchema(),
		},
		"required": []string{"operation"},
	}
}
