package terminal

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates terminal handlers.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(), nil
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeTerminal
}

func (f *Factory) Name() string {
	return "End"
}

func (f *Factory) Description() string {
	return "Ends the flow as completed or failed"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"outcome": map[string]any{
				"type":    "string",
				"enum":    []string{"completed", "failed"},
				"default": "completed",
			},
			"error": map[string]any{"type": "string"},
		},
	}
}
