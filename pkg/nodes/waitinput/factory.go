package waitinput

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates wait_input handlers.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(), nil
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeWaitInput
}

func (f *Factory) Name() string {
	return "Wait for Input"
}

func (f *Factory) Description() string {
	return "Pauses the conversation until the user replies or presses a button"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"wait_type": map[string]any{
				"type": "string",
				"enum": []string{"message", "callback", "any"},
			},
			"variable": map[string]any{
				"type":        "string",
				"description": "Session variable receiving the reply text or callback data",
			},
			"timeout_seconds": map[string]any{"type": "integer", "minimum": 0},
			"timeout_node_id": map[string]any{"type": "string"},
		},
		"required": []string{"wait_type"},
	}
}
