package message

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates message handlers.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(deps.Messenger)
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeMessage
}

func (f *Factory) Name() string {
	return "Message"
}

func (f *Factory) Description() string {
	return "Renders a text message with optional buttons and sends it to the conversation"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Message text. Supports templating, e.g. {{.vars.name}}",
			},
			"parse_mode": map[string]any{
				"type": "string",
				"enum": []string{"plain", "markdown", "html"},
			},
			"buttons": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text":          map[string]any{"type": "string", "minLength": 1},
						"callback_data": map[string]any{"type": "string", "minLength": 1},
					},
					"required": []string{"text", "callback_data"},
				},
			},
		},
		"required": []string{"text"},
	}
}
